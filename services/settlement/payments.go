package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// PaymentClient abstrai a submissão de transferências de valor nativo na chain
type PaymentClient interface {
	// SubmitPayment envia nativeAmount do buyer para o seller e só retorna a
	// signature depois que a transação atinge o commitment level "confirmed"
	SubmitPayment(ctx context.Context, fromAddress, toAddress string, nativeAmount decimal.Decimal) (string, error)
}

// RPCPaymentClient implementa PaymentClient via JSON-RPC sobre HTTP
type RPCPaymentClient struct {
	client         *resty.Client
	endpoint       string
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewRPCPaymentClient cria uma nova instância de RPCPaymentClient
func NewRPCPaymentClient(endpoint string, confirmTimeout time.Duration) *RPCPaymentClient {
	client := resty.New().
		SetTimeout(15 * time.Second)

	return &RPCPaymentClient{
		client:         client,
		endpoint:       endpoint,
		pollInterval:   2 * time.Second,
		confirmTimeout: confirmTimeout,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type submitResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type statusResponse struct {
	Result struct {
		Value []*struct {
			ConfirmationStatus string    `json:"confirmationStatus"`
			Err                *rpcError `json:"err"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// SubmitPayment envia a transferência de valor e aguarda a confirmação
func (c *RPCPaymentClient) SubmitPayment(ctx context.Context, fromAddress, toAddress string, nativeAmount decimal.Decimal) (string, error) {
	var body submitResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "sendTransaction",
			Params: []interface{}{map[string]string{
				"instruction": "native_transfer",
				"from":        fromAddress,
				"to":          toAddress,
				"amount":      nativeAmount.String(),
			}},
		}).
		SetResult(&body).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: rpc endpoint returned status %d", ErrTransactionFailed, resp.StatusCode())
	}
	if body.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrTransactionFailed, body.Error.Message)
	}
	if body.Result == "" {
		return "", fmt.Errorf("%w: empty signature", ErrTransactionFailed)
	}

	if err := c.awaitConfirmation(ctx, body.Result); err != nil {
		return "", err
	}

	return body.Result, nil
}

// awaitConfirmation faz polling do status da signature até "confirmed",
// limitado pelo confirmTimeout além do ctx do caller
func (c *RPCPaymentClient) awaitConfirmation(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var body statusResponse

		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(rpcRequest{
				JSONRPC: "2.0",
				ID:      1,
				Method:  "getSignatureStatuses",
				Params:  []interface{}{[]string{signature}},
			}).
			SetResult(&body).
			Post(c.endpoint)

		if err == nil && !resp.IsError() && body.Error == nil && len(body.Result.Value) > 0 {
			status := body.Result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %s", ErrTransactionFailed, status.Err.Message)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: confirmation wait expired for %s", ErrTransactionFailed, signature)
		case <-ticker.C:
		}
	}
}

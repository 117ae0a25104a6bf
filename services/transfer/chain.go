package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ChainClient abstrai o endpoint RPC da blockchain
type ChainClient interface {
	// SubmitTransfer submete uma instrução de transferência de ownership e
	// retorna a signature da transação
	SubmitTransfer(ctx context.Context, fromPublicKey, toPublicKey, productID string) (string, error)
	// SubmitRegistration submete a instrução de registro (mint) de um produto
	SubmitRegistration(ctx context.Context, ownerPublicKey, productID string) (string, error)
	// ConfirmTransaction aguarda a transação atingir o commitment level "confirmed"
	ConfirmTransaction(ctx context.Context, signature string) error
}

// RPCChainClient implementa ChainClient via JSON-RPC sobre HTTP
type RPCChainClient struct {
	client         *resty.Client
	endpoint       string
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewRPCChainClient cria uma nova instância de RPCChainClient
func NewRPCChainClient(endpoint string, confirmTimeout time.Duration) *RPCChainClient {
	client := resty.New().
		SetTimeout(15 * time.Second)

	return &RPCChainClient{
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

type signatureStatus struct {
	ConfirmationStatus string    `json:"confirmationStatus"`
	Err                *rpcError `json:"err"`
}

type statusResponse struct {
	Result struct {
		Value []*signatureStatus `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (c *RPCChainClient) submit(ctx context.Context, method string, instruction map[string]string) (string, error) {
	var body submitResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  method,
			Params:  []interface{}{instruction},
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

	return body.Result, nil
}

// SubmitTransfer submete a instrução de transferência de ownership
func (c *RPCChainClient) SubmitTransfer(ctx context.Context, fromPublicKey, toPublicKey, productID string) (string, error) {
	return c.submit(ctx, "sendTransaction", map[string]string{
		"instruction": "transfer_ownership",
		"from":        fromPublicKey,
		"to":          toPublicKey,
		"product_id":  productID,
	})
}

// SubmitRegistration submete a instrução de registro de um produto
func (c *RPCChainClient) SubmitRegistration(ctx context.Context, ownerPublicKey, productID string) (string, error) {
	return c.submit(ctx, "sendTransaction", map[string]string{
		"instruction": "register_product",
		"owner":       ownerPublicKey,
		"product_id":  productID,
	})
}

// ConfirmTransaction faz polling de getSignatureStatuses até "confirmed" ou
// "finalized". A espera é limitada pelo confirmTimeout além do ctx do caller;
// an already-submitted transaction is never cancelled, only abandoned.
func (c *RPCChainClient) ConfirmTransaction(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.queryStatus(ctx, signature)
		if err == nil && status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %s", ErrTransactionFailed, status.Err.Message)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}
		if err != nil && ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: confirmation wait expired for %s", ErrTransactionFailed, signature)
		case <-ticker.C:
		}
	}

	return fmt.Errorf("%w: confirmation wait expired for %s", ErrTransactionFailed, signature)
}

func (c *RPCChainClient) queryStatus(ctx context.Context, signature string) (*signatureStatus, error) {
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
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode())
	}
	if body.Error != nil {
		return nil, fmt.Errorf("rpc error: %s", body.Error.Message)
	}
	if len(body.Result.Value) == 0 {
		return nil, nil
	}

	return body.Result.Value[0], nil
}

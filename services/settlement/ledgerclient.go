package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Statuses do ledger em que um purchase request ainda aceita pagamento
const (
	RequestStatusProposed = "proposed"
	RequestStatusAccepted = "accepted"
)

// LedgerRequest é a visão do settlement de um purchase request do ledger
type LedgerRequest struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	ListingID       string          `json:"listing_id"`
	SellerID        string          `json:"seller_id"`
	BuyerID         string          `json:"buyer_id"`
	OfferedPrice    decimal.Decimal `json:"offered_price"`
	OfferedCurrency string          `json:"offered_currency"`
	Status          string          `json:"status"`
}

// LedgerClient consulta purchase requests no ledger service
type LedgerClient interface {
	GetRequest(ctx context.Context, requestID string) (*LedgerRequest, error)
}

// RestyLedgerClient implementa LedgerClient via HTTP
type RestyLedgerClient struct {
	client  *resty.Client
	baseURL string
}

// NewLedgerClient cria uma nova instância de RestyLedgerClient
func NewLedgerClient(baseURL string) *RestyLedgerClient {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &RestyLedgerClient{
		client:  client,
		baseURL: baseURL,
	}
}

// GetRequest busca um purchase request pelo ID
func (c *RestyLedgerClient) GetRequest(ctx context.Context, requestID string) (*LedgerRequest, error) {
	var body LedgerRequest

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(c.baseURL + "/api/requests/" + requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase request: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ledger service returned status %d", resp.StatusCode())
	}

	return &body, nil
}

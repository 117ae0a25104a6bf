package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// OwnershipClient consulta o dono atual de um produto no transfer service
type OwnershipClient interface {
	CurrentOwner(ctx context.Context, productID string) (string, error)
}

// RestyOwnershipClient implementa OwnershipClient via HTTP
type RestyOwnershipClient struct {
	client  *resty.Client
	baseURL string
}

// NewOwnershipClient cria uma nova instância de RestyOwnershipClient
func NewOwnershipClient(baseURL string) *RestyOwnershipClient {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &RestyOwnershipClient{
		client:  client,
		baseURL: baseURL,
	}
}

type currentOwnerResponse struct {
	ProductID string `json:"product_id"`
	OwnerID   string `json:"owner_id"`
}

// CurrentOwner retorna o owner_id do registro de ownership aberto do produto
func (c *RestyOwnershipClient) CurrentOwner(ctx context.Context, productID string) (string, error) {
	var body currentOwnerResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(c.baseURL + "/api/ownership/" + productID + "/current")
	if err != nil {
		return "", fmt.Errorf("failed to query current owner: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.IsError() {
		return "", fmt.Errorf("transfer service returned status %d", resp.StatusCode())
	}

	return body.OwnerID, nil
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// PriceOracle abstrai o oráculo externo de preços
type PriceOracle interface {
	// Rate retorna quanto vale 1 unidade do token nativo na moeda fiat dada
	Rate(ctx context.Context, fiatCurrency string) (decimal.Decimal, error)
}

// RestyPriceOracle implementa PriceOracle sobre a API simple/price
type RestyPriceOracle struct {
	client  *resty.Client
	baseURL string
	token   string
}

// NewPriceOracle cria uma nova instância de RestyPriceOracle
func NewPriceOracle(baseURL, token string) *RestyPriceOracle {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &RestyPriceOracle{
		client:  client,
		baseURL: baseURL,
		token:   token,
	}
}

// Rate consulta GET /simple/price?ids=<token>&vs_currencies=<fiat>.
// A ausência da rate na resposta é um caso válido e vira ErrQuoteUnavailable;
// não há cache nem retry, cada compra faz uma consulta fresca.
func (o *RestyPriceOracle) Rate(ctx context.Context, fiatCurrency string) (decimal.Decimal, error) {
	fiat := strings.ToLower(fiatCurrency)

	var body map[string]map[string]decimal.Decimal

	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           o.token,
			"vs_currencies": fiat,
		}).
		SetResult(&body).
		Get(o.baseURL + "/simple/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("%w: oracle returned status %d", ErrQuoteUnavailable, resp.StatusCode())
	}

	rates, ok := body[o.token]
	if !ok {
		return decimal.Zero, ErrQuoteUnavailable
	}
	rate, ok := rates[fiat]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, ErrQuoteUnavailable
	}

	return rate, nil
}

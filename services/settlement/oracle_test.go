package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func oracleServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(handler))
}

func TestRestyPriceOracle_Rate(t *testing.T) {
	srv := oracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "solana", r.URL.Query().Get("ids"))
		assert.Equal(t, "sgd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"solana":{"sgd":120}}`)
	})
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, "solana")

	rate, err := oracle.Rate(context.Background(), "SGD")

	assert.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(120)), "expected rate 120, got %s", rate)
}

func TestRestyPriceOracle_RateMissingCurrency(t *testing.T) {
	srv := oracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"solana":{"usd":150.25}}`)
	})
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, "solana")

	rate, err := oracle.Rate(context.Background(), "SGD")

	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.True(t, rate.IsZero())
}

func TestRestyPriceOracle_RateMissingToken(t *testing.T) {
	srv := oracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, "solana")

	_, err := oracle.Rate(context.Background(), "SGD")

	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestRestyPriceOracle_RateNonPositive(t *testing.T) {
	srv := oracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"solana":{"sgd":0}}`)
	})
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, "solana")

	_, err := oracle.Rate(context.Background(), "SGD")

	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestRestyPriceOracle_RateOracleDown(t *testing.T) {
	srv := oracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, "solana")

	rate, err := oracle.Rate(context.Background(), "SGD")

	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.True(t, rate.IsZero())
}

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dtm-labs/client/dtmcli"
	"go.opentelemetry.io/otel/trace"
)

// SagaOrchestrator abstrai as operações SAGA do DTM
type SagaOrchestrator interface {
	FinalizePurchaseSaga(ctx context.Context, purchase FinalizeContext) (string, error)
}

// FinalizeContext carrega tudo que as branches da SAGA de finalização precisam
type FinalizeContext struct {
	RequestID       string
	ProductID       string
	SellerID        string
	BuyerID         string
	SellerPublicKey string
	BuyerPublicKey  string
	PaymentTxHash   string
}

// ledgerActionPayload é o payload das branches do ledger service
type ledgerActionPayload struct {
	RequestID     string `json:"request_id"`
	BuyerID       string `json:"buyer_id"`
	PaymentTxHash string `json:"payment_tx_hash"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// transferActionPayload é o payload da branch do transfer service
type transferActionPayload struct {
	RequestID       string `json:"request_id"`
	ProductID       string `json:"product_id"`
	SellerID        string `json:"seller_id"`
	BuyerID         string `json:"buyer_id"`
	SellerPublicKey string `json:"seller_public_key"`
	BuyerPublicKey  string `json:"buyer_public_key"`
	TraceID         string `json:"trace_id,omitempty"`
	SpanID          string `json:"span_id,omitempty"`
}

// DTMSagaOrchestrator implementa SagaOrchestrator usando DTM
type DTMSagaOrchestrator struct{}

// NewDTMSagaOrchestrator cria uma nova instância do orquestrador SAGA
func NewDTMSagaOrchestrator() *DTMSagaOrchestrator {
	return &DTMSagaOrchestrator{}
}

// FinalizePurchaseSaga orquestra a finalização de uma compra:
// registra o pagamento no ledger, transfere o ownership do produto e
// completa o request. Cada branch tem sua compensação, exceto a última.
func (so *DTMSagaOrchestrator) FinalizePurchaseSaga(ctx context.Context, purchase FinalizeContext) (string, error) {
	// Extract trace context from the incoming context
	var traceID, spanID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		spanID = span.SpanContext().SpanID().String()
	}

	defer func() {
		if r := recover(); r != nil {
		}
	}()
	gid := dtmcli.MustGenGid(getEnv("DTM_SERVER", "http://dtm:36789/api/dtmsvr"))

	log.Printf("🚀 Starting finalize SAGA | TraceID: %s | GID: %s | RequestID: %s", traceID, gid, purchase.RequestID)

	ledgerURL := getEnv("LEDGER_SERVICE_URL", "http://ledger-service:8080")
	transferURL := getEnv("TRANSFER_SERVICE_URL", "http://transfer-service:8081")

	ledgerPayload := &ledgerActionPayload{
		RequestID:     purchase.RequestID,
		BuyerID:       purchase.BuyerID,
		PaymentTxHash: purchase.PaymentTxHash,
		TraceID:       traceID,
		SpanID:        spanID,
	}

	saga := dtmcli.NewSaga(getEnv("DTM_SERVER", "http://dtm:36789/api/dtmsvr"), gid).
		Add(
			ledgerURL+"/api/requests/pay",
			ledgerURL+"/api/requests/pay/compensate",
			ledgerPayload,
		).
		Add(
			transferURL+"/api/transfers/execute",
			transferURL+"/api/transfers/compensate",
			&transferActionPayload{
				RequestID:       purchase.RequestID,
				ProductID:       purchase.ProductID,
				SellerID:        purchase.SellerID,
				BuyerID:         purchase.BuyerID,
				SellerPublicKey: purchase.SellerPublicKey,
				BuyerPublicKey:  purchase.BuyerPublicKey,
				TraceID:         traceID,
				SpanID:          spanID,
			},
		).
		Add(
			ledgerURL+"/api/requests/complete",
			"",
			ledgerPayload,
		)

	err := saga.Submit()

	if err != nil {
		log.Printf("❌ Finalize SAGA failed: %v", err)
		return gid, fmt.Errorf("failed to finalize purchase: %w", err)
	}

	log.Printf("✅ Finalize SAGA submitted successfully - GID: %s, RequestID: %s", gid, purchase.RequestID)

	return gid, nil
}

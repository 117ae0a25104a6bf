package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SettlementUseCaseInterface define a interface para o use case
type SettlementUseCaseInterface interface {
	QuoteNativeAmount(ctx context.Context, fiatAmount decimal.Decimal, fiatCurrency string) (decimal.Decimal, error)
	SubmitPayment(ctx context.Context, buyerID, sellerID string, nativeAmount decimal.Decimal) (string, error)
	FinalizePurchase(ctx context.Context, requestID, buyerID string) (string, string, error)
	RegisterWallet(ctx context.Context, userID, address string) (*Wallet, error)
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
}

// SettlementHandler contém os handlers HTTP
type SettlementHandler struct {
	useCase SettlementUseCaseInterface
	tracer  trace.Tracer
}

// NewSettlementHandler cria uma nova instância de SettlementHandler
func NewSettlementHandler(useCase SettlementUseCaseInterface, tracer trace.Tracer) *SettlementHandler {
	return &SettlementHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// respondError mapeia a taxonomia de erros do settlement para status HTTP
func respondError(c *gin.Context, err error) {
	span := trace.SpanFromContext(c.Request.Context())
	span.RecordError(err)

	switch {
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWalletNotConnected), errors.Is(err, ErrInvalidRecipient), errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrQuoteUnavailable), errors.Is(err, ErrTransactionFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Quote converte um valor fiat para o token nativo
func (h *SettlementHandler) Quote(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "quote_native_amount")
	defer span.End()

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return
	}
	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency is required"})
		return
	}

	span.SetAttributes(
		attribute.String("fiat_amount", amount.String()),
		attribute.String("fiat_currency", currency),
	)

	native, err := h.useCase.QuoteNativeAmount(ctx, amount, currency)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fiat_amount":   amount,
		"fiat_currency": currency,
		"native_amount": native,
	})
}

type submitPaymentBody struct {
	BuyerID      string `json:"buyer_id" binding:"required"`
	SellerID     string `json:"seller_id" binding:"required"`
	NativeAmount string `json:"native_amount" binding:"required"`
}

// SubmitPayment executa a transferência de valor nativo buyer -> seller
func (h *SettlementHandler) SubmitPayment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "submit_payment")
	defer span.End()

	var body submitPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(body.NativeAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "native_amount must be a decimal"})
		return
	}

	span.SetAttributes(
		attribute.String("buyer_id", body.BuyerID),
		attribute.String("seller_id", body.SellerID),
		attribute.String("native_amount", amount.String()),
	)

	signature, err := h.useCase.SubmitPayment(ctx, body.BuyerID, body.SellerID, amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": signature})
}

// FinalizePurchase paga um purchase request e dispara a SAGA de finalização
func (h *SettlementHandler) FinalizePurchase(c *gin.Context) {
	// Span principal que engloba toda a finalização
	ctx, span := h.tracer.Start(c.Request.Context(), "finalize_purchase")
	defer span.End()

	var body FinalizePurchaseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID := c.Param("requestId")
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("buyer_id", body.BuyerID),
	)

	// Criar span filho para o processamento do DTM SAGA
	ctxDTM, spanDTM := h.tracer.Start(ctx, "dtm.orchestration")
	spanDTM.SetAttributes(
		attribute.String("component", "dtm-coordinator"),
	)

	gid, signature, err := h.useCase.FinalizePurchase(ctxDTM, requestID, body.BuyerID)

	if err != nil {
		spanDTM.RecordError(err)
		spanDTM.End()
		respondError(c, err)
		return
	}

	spanDTM.SetAttributes(
		attribute.String("dtm_gid", gid),
		attribute.String("payment_signature", signature),
	)
	spanDTM.End()

	c.JSON(http.StatusOK, gin.H{
		"request_id": requestID,
		"saga_gid":   gid,
		"signature":  signature,
		"message":    "Purchase finalization SAGA initiated successfully",
	})
}

// RegisterWallet registra ou substitui a wallet de um usuário
func (h *SettlementHandler) RegisterWallet(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "register_wallet")
	defer span.End()

	var body RegisterWalletRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := h.useCase.RegisterWallet(ctx, c.Param("userId"), body.Address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// GetWallet busca a wallet registrada de um usuário
func (h *SettlementHandler) GetWallet(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_wallet")
	defer span.End()

	wallet, err := h.useCase.GetWallet(ctx, c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// HealthCheck verifica a saúde do serviço
func (h *SettlementHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "settlement-service",
	})
}

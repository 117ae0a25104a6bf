package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LedgerUseCaseInterface define a interface para o use case
type LedgerUseCaseInterface interface {
	CreateListing(ctx context.Context, req CreateListingRequest) (*Listing, error)
	UpdateListing(ctx context.Context, listingID string, req UpdateListingRequest) (*Listing, error)
	DeleteListing(ctx context.Context, listingID, sellerID string) error
	GetListing(ctx context.Context, listingID string) (*Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error)
	ProposeRequest(ctx context.Context, req ProposeRequestRequest) (*PurchaseRequest, error)
	AcceptRequest(ctx context.Context, requestID, sellerID string) (*PurchaseRequest, error)
	RejectRequest(ctx context.Context, requestID, sellerID string) (*PurchaseRequest, error)
	CancelRequest(ctx context.Context, requestID, buyerID string) (*PurchaseRequest, error)
	GetRequest(ctx context.Context, requestID string) (*PurchaseRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error)
	RecordPayment(ctx context.Context, req PaymentActionRequest) error
	CompensatePayment(ctx context.Context, req PaymentActionRequest) error
	CompleteRequest(ctx context.Context, req PaymentActionRequest) error
}

// LedgerHandler contém os handlers HTTP
type LedgerHandler struct {
	useCase LedgerUseCaseInterface
	tracer  trace.Tracer
}

// NewLedgerHandler cria uma nova instância de LedgerHandler
func NewLedgerHandler(useCase LedgerUseCaseInterface, tracer trace.Tracer) *LedgerHandler {
	return &LedgerHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// respondError mapeia a taxonomia de erros do ledger para status HTTP
func respondError(c *gin.Context, err error) {
	span := trace.SpanFromContext(c.Request.Context())
	span.RecordError(err)

	switch {
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CreateListing cria um listing para um produto
func (h *LedgerHandler) CreateListing(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_listing")
	defer span.End()

	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("product_id", req.ProductID),
		attribute.String("seller_id", req.SellerID),
		attribute.String("currency", req.Currency),
	)

	listing, err := h.useCase.CreateListing(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	span.SetAttributes(attribute.String("listing_id", listing.ID))
	c.JSON(http.StatusCreated, listing)
}

// UpdateListing aplica um patch ao listing
func (h *LedgerHandler) UpdateListing(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "update_listing")
	defer span.End()

	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("listing_id", c.Param("id")))

	listing, err := h.useCase.UpdateListing(ctx, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// DeleteListing remove um listing não vendido
func (h *LedgerHandler) DeleteListing(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_listing")
	defer span.End()

	sellerID := c.Query("seller_id")
	if sellerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seller_id is required"})
		return
	}

	if err := h.useCase.DeleteListing(ctx, c.Param("id"), sellerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// GetListing busca um listing pelo ID
func (h *LedgerHandler) GetListing(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_listing")
	defer span.End()

	listing, err := h.useCase.GetListing(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// ListListings busca listings pelo filtro
func (h *LedgerHandler) ListListings(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_listings")
	defer span.End()

	listings, err := h.useCase.ListListings(ctx, ListingFilter{
		ProductID: c.Query("product_id"),
		SellerID:  c.Query("seller_id"),
		Status:    c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// ProposeRequest cria um purchase request
func (h *LedgerHandler) ProposeRequest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "propose_request")
	defer span.End()

	var req ProposeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("listing_id", req.ListingID),
		attribute.String("buyer_id", req.BuyerID),
	)

	request, err := h.useCase.ProposeRequest(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	span.SetAttributes(attribute.String("request_id", request.ID))
	c.JSON(http.StatusCreated, request)
}

type requestLifecycleBody struct {
	CallerID string `json:"caller_id" binding:"required"`
}

// AcceptRequest marca um request como aceito pelo seller
func (h *LedgerHandler) AcceptRequest(c *gin.Context) {
	h.lifecycleAction(c, "accept_request", h.useCase.AcceptRequest)
}

// RejectRequest marca um request como rejeitado pelo seller
func (h *LedgerHandler) RejectRequest(c *gin.Context) {
	h.lifecycleAction(c, "reject_request", h.useCase.RejectRequest)
}

// CancelRequest abandona um request pelo buyer
func (h *LedgerHandler) CancelRequest(c *gin.Context) {
	h.lifecycleAction(c, "cancel_request", h.useCase.CancelRequest)
}

func (h *LedgerHandler) lifecycleAction(c *gin.Context, name string, action func(context.Context, string, string) (*PurchaseRequest, error)) {
	ctx, span := h.tracer.Start(c.Request.Context(), name)
	defer span.End()

	var body requestLifecycleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("request_id", c.Param("id")))

	request, err := action(ctx, c.Param("id"), body.CallerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetRequest busca um purchase request pelo ID
func (h *LedgerHandler) GetRequest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_request")
	defer span.End()

	request, err := h.useCase.GetRequest(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// ListRequests busca purchase requests pelo filtro
func (h *LedgerHandler) ListRequests(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_requests")
	defer span.End()

	requests, err := h.useCase.ListRequests(ctx, RequestFilter{
		BuyerID:  c.Query("buyer_id"),
		SellerID: c.Query("seller_id"),
		Status:   c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// RecordPayment é o endpoint SAGA que marca um request como pago
func (h *LedgerHandler) RecordPayment(c *gin.Context) {
	h.sagaAction(c, "record_payment", h.useCase.RecordPayment)
}

// CompensatePayment é o endpoint SAGA que reverte um pagamento
func (h *LedgerHandler) CompensatePayment(c *gin.Context) {
	h.sagaAction(c, "compensate_payment", h.useCase.CompensatePayment)
}

// CompleteRequest é o endpoint SAGA que finaliza um request pago
func (h *LedgerHandler) CompleteRequest(c *gin.Context) {
	h.sagaAction(c, "complete_request", h.useCase.CompleteRequest)
}

func (h *LedgerHandler) sagaAction(c *gin.Context, name string, action func(context.Context, PaymentActionRequest) error) {
	var req PaymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := startSpanFromPayload(c.Request.Context(), name, req)
	defer span.End()

	span.SetAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.String("trace_id", req.TraceID),
	)

	if err := action(ctx, req); err != nil {
		span.RecordError(err)
		// Business-rule failures must abort the saga, not be retried
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// HealthCheck verifica a saúde do serviço
func (h *LedgerHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ledger-service",
	})
}

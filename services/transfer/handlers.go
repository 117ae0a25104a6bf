package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TransferUseCaseInterface define a interface para o use case
type TransferUseCaseInterface interface {
	TransferBatch(ctx context.Context, req BatchTransferRequest) []TransferResult
	ExecuteTransfer(ctx context.Context, req TransferActionRequest) error
	CompensateTransfer(ctx context.Context, req TransferActionRequest) error
	RegisterProduct(ctx context.Context, req RegisterProductRequest) (*OwnershipRecord, error)
	CurrentOwner(ctx context.Context, productID string) (*OwnershipRecord, error)
	History(ctx context.Context, productID string) ([]OwnershipRecord, error)
}

// TransferHandler contém os handlers HTTP
type TransferHandler struct {
	useCase TransferUseCaseInterface
	tracer  trace.Tracer
}

// NewTransferHandler cria uma nova instância de TransferHandler
func NewTransferHandler(useCase TransferUseCaseInterface, tracer trace.Tracer) *TransferHandler {
	return &TransferHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// TransferBatch executa uma transferência em lote e devolve um resultado por item
func (h *TransferHandler) TransferBatch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "transfer_batch")
	defer span.End()

	var req BatchTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("from_user_id", req.FromUserID),
		attribute.String("to_user_id", req.ToUserID),
		attribute.Int("batch_size", len(req.ProductIDs)),
	)

	results := h.useCase.TransferBatch(ctx, req)

	succeeded := 0
	for _, res := range results {
		if res.OK {
			succeeded++
		}
	}
	span.SetAttributes(attribute.Int("batch_succeeded", succeeded))

	// Partial failure is a legitimate outcome, reported per item
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ExecuteTransfer é o endpoint SAGA que transfere um produto
func (h *TransferHandler) ExecuteTransfer(c *gin.Context) {
	h.sagaAction(c, "execute_transfer", h.useCase.ExecuteTransfer)
}

// CompensateTransfer é o endpoint SAGA que devolve um produto ao seller
func (h *TransferHandler) CompensateTransfer(c *gin.Context) {
	h.sagaAction(c, "compensate_transfer", h.useCase.CompensateTransfer)
}

func (h *TransferHandler) sagaAction(c *gin.Context, name string, action func(context.Context, TransferActionRequest) error) {
	var req TransferActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := startSpanFromPayload(c.Request.Context(), name, req)
	defer span.End()

	span.SetAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.String("product_id", req.ProductID),
		attribute.String("trace_id", req.TraceID),
	)

	if err := action(ctx, req); err != nil {
		span.RecordError(err)
		// Ownership violations are not retryable; abort the saga
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotCurrentOwner) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// RegisterProduct abre o registro genesis de ownership de um produto
func (h *TransferHandler) RegisterProduct(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "register_product")
	defer span.End()

	var req RegisterProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("product_id", req.ProductID),
		attribute.String("owner_id", req.OwnerID),
	)

	record, err := h.useCase.RegisterProduct(ctx, req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// CurrentOwner retorna o dono atual de um produto
func (h *TransferHandler) CurrentOwner(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "current_owner")
	defer span.End()

	record, err := h.useCase.CurrentOwner(ctx, c.Param("productId"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

// History retorna o histórico de ownership de um produto
func (h *TransferHandler) History(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "ownership_history")
	defer span.End()

	records, err := h.useCase.History(ctx, c.Param("productId"))
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

// HealthCheck verifica a saúde do serviço
func (h *TransferHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "transfer-service",
	})
}

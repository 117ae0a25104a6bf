package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// TransferUseCase contém a lógica de negócio de transferências de ownership
type TransferUseCase struct {
	repository           OwnershipRepository
	chain                ChainClient
	maxInFlight          int
	itemSucceededCounter metric.Int64Counter
	itemFailedCounter    metric.Int64Counter
}

// NewTransferUseCase cria uma nova instância de TransferUseCase
func NewTransferUseCase(
	repository OwnershipRepository,
	chain ChainClient,
	maxInFlight int,
) *TransferUseCase {
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	meter := otel.Meter("transfer-service")
	succeeded, _ := meter.Int64Counter("transfer.batch.items.succeeded")
	failed, _ := meter.Int64Counter("transfer.batch.items.failed")

	return &TransferUseCase{
		repository:           repository,
		chain:                chain,
		maxInFlight:          maxInFlight,
		itemSucceededCounter: succeeded,
		itemFailedCounter:    failed,
	}
}

// BatchTransferRequest representa a requisição de transferência em lote
type BatchTransferRequest struct {
	FromUserID  string   `json:"from_user_id" binding:"required"`
	ToUserID    string   `json:"to_user_id" binding:"required"`
	ToPublicKey string   `json:"to_public_key" binding:"required"`
	ProductIDs  []string `json:"product_ids" binding:"required,min=1"`
}

// TransferActionRequest representa a ação SAGA de transferência de um produto
type TransferActionRequest struct {
	RequestID       string `json:"request_id" binding:"required"`
	ProductID       string `json:"product_id" binding:"required"`
	SellerID        string `json:"seller_id" binding:"required"`
	BuyerID         string `json:"buyer_id" binding:"required"`
	SellerPublicKey string `json:"seller_public_key"`
	BuyerPublicKey  string `json:"buyer_public_key"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// RegisterProductRequest representa o registro de fábrica de um produto
type RegisterProductRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	OwnerID        string `json:"owner_id" binding:"required"`
	OwnerPublicKey string `json:"owner_public_key" binding:"required"`
}

// TransferBatch executa uma transferência on-chain por produto, de forma
// independente: a falha de um item nunca impede a tentativa dos demais.
// Os resultados voltam na mesma ordem dos product_ids de entrada.
func (uc *TransferUseCase) TransferBatch(ctx context.Context, req BatchTransferRequest) []TransferResult {
	log.Printf("🚀 [TRANSFER BATCH] From: %s | To: %s | Products: %d", req.FromUserID, req.ToUserID, len(req.ProductIDs))

	results := make([]TransferResult, len(req.ProductIDs))

	// Bounded fan-out: each worker writes only its own index, which keeps
	// the output order stable without any post-hoc sorting
	sem := make(chan struct{}, uc.maxInFlight)
	var wg sync.WaitGroup

	for i, productID := range req.ProductIDs {
		// An abandoned batch skips items not yet started; transactions
		// already submitted on-chain are never cancelled
		if ctx.Err() != nil {
			results[i] = TransferResult{ProductID: productID, OK: false, Message: "batch cancelled"}
			continue
		}

		wg.Add(1)
		go func(i int, productID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = uc.transferOne(ctx, req.FromUserID, req.ToUserID, req.ToPublicKey, productID)
		}(i, productID)
	}

	wg.Wait()

	for _, res := range results {
		if res.OK {
			uc.itemSucceededCounter.Add(ctx, 1)
			log.Printf("✅ Product %s: transferred (%s)", res.ProductID, res.TxHash)
		} else {
			uc.itemFailedCounter.Add(ctx, 1)
			log.Printf("❌ Product %s: %s", res.ProductID, res.Message)
		}
	}

	return results
}

// transferOne valida ownership, submete a transferência on-chain e troca os
// registros de ownership. Qualquer falha vira o resultado do item.
func (uc *TransferUseCase) transferOne(ctx context.Context, fromUserID, toUserID, toPublicKey, productID string) TransferResult {
	fail := func(msg string) TransferResult {
		return TransferResult{ProductID: productID, OK: false, Message: msg}
	}

	current, err := uc.repository.GetCurrentRecord(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(ErrNotCurrentOwner.Error())
		}
		return fail(err.Error())
	}
	if current.OwnerID != fromUserID {
		return fail(ErrNotCurrentOwner.Error())
	}

	// A product is only transfer-eligible once its own acquisition is
	// confirmed on-chain; re-checked here instead of trusting the caller
	if current.TxHash != "" {
		if err := uc.chain.ConfirmTransaction(ctx, current.TxHash); err != nil {
			return fail(fmt.Sprintf("prior transfer not confirmed: %v", err))
		}
	}

	signature, err := uc.chain.SubmitTransfer(ctx, current.OwnerPublicKey, toPublicKey, productID)
	if err != nil {
		return fail(err.Error())
	}
	if err := uc.chain.ConfirmTransaction(ctx, signature); err != nil {
		return fail(err.Error())
	}

	// The on-chain transfer is done; swap the off-chain records, re-checking
	// the owner under lock in case a concurrent transfer won the race
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fail(fmt.Sprintf("failed to begin transaction: %v", err))
	}
	defer tx.Rollback()

	locked, err := uc.repository.GetCurrentRecordForUpdate(ctx, tx, productID)
	if err != nil {
		return fail(err.Error())
	}
	if locked.OwnerID != fromUserID {
		return fail(ErrNotCurrentOwner.Error())
	}

	next := NewOwnershipRecord(uuid.New().String(), productID, toUserID, toPublicKey, signature)
	if err := uc.repository.CloseAndOpen(ctx, tx, locked, next); err != nil {
		return fail(err.Error())
	}
	if err := tx.Commit(); err != nil {
		return fail(fmt.Sprintf("failed to commit ownership swap: %v", err))
	}

	return TransferResult{ProductID: productID, OK: true, Message: "transferred", TxHash: signature}
}

// ExecuteTransfer é a ação SAGA que transfere um produto do seller para o buyer
func (uc *TransferUseCase) ExecuteTransfer(ctx context.Context, req TransferActionRequest) error {
	log.Printf("➡️ [EXECUTE TRANSFER] RequestID: %s | ProductID: %s | TraceID: %s", req.RequestID, req.ProductID, req.TraceID)

	current, err := uc.repository.GetCurrentRecord(ctx, req.ProductID)
	if err != nil {
		return err
	}

	// Idempotency: a replayed branch finds the buyer already owning the product
	if current.OwnerID == req.BuyerID {
		log.Printf("ℹ️ [IDEMPOTENCY] Product %s already owned by buyer %s", req.ProductID, req.BuyerID)
		return nil
	}

	result := uc.transferOne(ctx, req.SellerID, req.BuyerID, req.BuyerPublicKey, req.ProductID)
	if !result.OK {
		log.Printf("❌ EXECUTE TRANSFER FAILED: %s | RequestID=%s", result.Message, req.RequestID)
		return fmt.Errorf("transfer failed for product %s: %s", req.ProductID, result.Message)
	}

	log.Printf("✅ [EXECUTE TRANSFER] Success: RequestID=%s TxHash=%s", req.RequestID, result.TxHash)
	return nil
}

// CompensateTransfer devolve o produto ao seller caso a SAGA aborte
func (uc *TransferUseCase) CompensateTransfer(ctx context.Context, req TransferActionRequest) error {
	log.Printf("↩️ [COMPENSATE TRANSFER] RequestID: %s | ProductID: %s | TraceID: %s", req.RequestID, req.ProductID, req.TraceID)

	current, err := uc.repository.GetCurrentRecord(ctx, req.ProductID)
	if err != nil {
		return err
	}

	// Idempotency: nothing to undo if the forward transfer never landed
	if current.OwnerID == req.SellerID {
		log.Printf("ℹ️ [IDEMPOTENCY] Product %s still owned by seller %s", req.ProductID, req.SellerID)
		return nil
	}

	result := uc.transferOne(ctx, req.BuyerID, req.SellerID, req.SellerPublicKey, req.ProductID)
	if !result.OK {
		log.Printf("❌ COMPENSATE TRANSFER FAILED: %s | RequestID=%s", result.Message, req.RequestID)
		return fmt.Errorf("compensation failed for product %s: %s", req.ProductID, result.Message)
	}

	log.Printf("♻️  Transfer compensated: RequestID=%s", req.RequestID)
	return nil
}

// RegisterProduct abre o registro genesis de ownership de um produto
func (uc *TransferUseCase) RegisterProduct(ctx context.Context, req RegisterProductRequest) (*OwnershipRecord, error) {
	log.Printf("➡️ [REGISTER PRODUCT] ProductID: %s | OwnerID: %s", req.ProductID, req.OwnerID)

	if _, err := uc.repository.GetCurrentRecord(ctx, req.ProductID); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	signature, err := uc.chain.SubmitRegistration(ctx, req.OwnerPublicKey, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := uc.chain.ConfirmTransaction(ctx, signature); err != nil {
		return nil, err
	}

	record := NewOwnershipRecord(uuid.New().String(), req.ProductID, req.OwnerID, req.OwnerPublicKey, signature)
	if err := uc.repository.CreateGenesisRecord(ctx, record); err != nil {
		return nil, err
	}

	log.Printf("✅ Product registered: %s (%s)", req.ProductID, signature)
	return record, nil
}

// CurrentOwner retorna o registro aberto do produto
func (uc *TransferUseCase) CurrentOwner(ctx context.Context, productID string) (*OwnershipRecord, error) {
	return uc.repository.GetCurrentRecord(ctx, productID)
}

// History retorna o histórico de ownership do produto
func (uc *TransferUseCase) History(ctx context.Context, productID string) ([]OwnershipRecord, error) {
	return uc.repository.History(ctx, productID)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerUseCase contém a lógica de negócio de listings e purchase requests
type LedgerUseCase struct {
	repository Repository
	owners     OwnershipClient
}

// NewLedgerUseCase cria uma nova instância de LedgerUseCase
func NewLedgerUseCase(
	repository Repository,
	owners OwnershipClient,
) *LedgerUseCase {
	return &LedgerUseCase{
		repository: repository,
		owners:     owners,
	}
}

// CreateListingRequest representa a requisição para criar um listing
type CreateListingRequest struct {
	SellerID  string `json:"seller_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Price     string `json:"price" binding:"required"`
	Currency  string `json:"currency" binding:"required"`
	Notes     string `json:"notes"`
}

// UpdateListingRequest representa o patch de um listing
type UpdateListingRequest struct {
	SellerID string  `json:"seller_id" binding:"required"`
	Price    *string `json:"price"`
	Currency *string `json:"currency"`
	Status   *string `json:"status"`
	Notes    *string `json:"notes"`
}

// ProposeRequestRequest representa a proposta de compra de um buyer
type ProposeRequestRequest struct {
	ListingID       string `json:"listing_id" binding:"required"`
	BuyerID         string `json:"buyer_id" binding:"required"`
	OfferedPrice    string `json:"offered_price" binding:"required"`
	OfferedCurrency string `json:"offered_currency" binding:"required"`
}

// PaymentActionRequest representa a ação SAGA de pagamento
type PaymentActionRequest struct {
	RequestID     string `json:"request_id" binding:"required"`
	BuyerID       string `json:"buyer_id"`
	PaymentTxHash string `json:"payment_tx_hash"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

func parsePositivePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be greater than zero")
	}
	return price, nil
}

// CreateListing cria um listing para um produto do seller.
// Falha com ErrConflict se já existe um listing ativo para o produto
// e com ErrForbidden se o seller não é o dono atual.
func (uc *LedgerUseCase) CreateListing(ctx context.Context, req CreateListingRequest) (*Listing, error) {
	log.Printf("➡️ [CREATE LISTING] ProductID: %s | SellerID: %s", req.ProductID, req.SellerID)

	price, err := parsePositivePrice(req.Price)
	if err != nil {
		return nil, err
	}
	if !ValidCurrency(req.Currency) {
		return nil, fmt.Errorf("unsupported currency %q", req.Currency)
	}

	ownerID, err := uc.owners.CurrentOwner(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("failed to verify product ownership: %w", err)
	}
	if ownerID != req.SellerID {
		log.Printf("❌ CREATE LISTING FAILED: seller %s is not current owner of %s", req.SellerID, req.ProductID)
		return nil, ErrForbidden
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := uc.repository.ActiveListingExists(ctx, tx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active listing: %w", err)
	}
	if exists {
		return nil, ErrConflict
	}

	listing := NewListing(uuid.New().String(), req.ProductID, req.SellerID, price, req.Currency, req.Notes)
	if err := uc.repository.CreateListing(ctx, tx, listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit listing: %w", err)
	}

	log.Printf("✅ Listing created: %s", listing.ID)
	return listing, nil
}

// UpdateListing aplica um patch de price/currency/status/notes ao listing do seller
func (uc *LedgerUseCase) UpdateListing(ctx context.Context, listingID string, req UpdateListingRequest) (*Listing, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	listing, err := uc.repository.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != req.SellerID {
		return nil, ErrForbidden
	}

	if req.Price != nil {
		price, err := parsePositivePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		listing.Price = price
	}
	if req.Currency != nil {
		if !ValidCurrency(*req.Currency) {
			return nil, fmt.Errorf("unsupported currency %q", *req.Currency)
		}
		listing.Currency = *req.Currency
	}
	if req.Status != nil {
		if err := listing.Transition(*req.Status); err != nil {
			return nil, err
		}
	}
	if req.Notes != nil {
		listing.Notes = *req.Notes
	}

	if err := uc.repository.UpdateListing(ctx, tx, listing); err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit listing update: %w", err)
	}

	log.Printf("✅ Listing updated: %s", listing.ID)
	return listing, nil
}

// DeleteListing remove um listing não vendido do seller
func (uc *LedgerUseCase) DeleteListing(ctx context.Context, listingID, sellerID string) error {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	listing, err := uc.repository.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return err
	}
	if listing.SellerID != sellerID {
		return ErrForbidden
	}
	if listing.Status == ListingStatusSold {
		// Sold listings are retained for history
		return ErrInvalidState
	}

	if err := uc.repository.DeleteListing(ctx, tx, listingID); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listing delete: %w", err)
	}

	log.Printf("🗑️ Listing deleted: %s", listingID)
	return nil
}

// GetListing busca um listing pelo ID
func (uc *LedgerUseCase) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	return uc.repository.GetListing(ctx, listingID)
}

// ListListings busca listings pelo filtro
func (uc *LedgerUseCase) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	return uc.repository.ListListings(ctx, filter)
}

// ProposeRequest cria um purchase request em status proposed.
// Falha com ErrNotFound se o listing não existe ou já foi vendido.
func (uc *LedgerUseCase) ProposeRequest(ctx context.Context, req ProposeRequestRequest) (*PurchaseRequest, error) {
	log.Printf("➡️ [PROPOSE REQUEST] ListingID: %s | BuyerID: %s", req.ListingID, req.BuyerID)

	offered, err := parsePositivePrice(req.OfferedPrice)
	if err != nil {
		return nil, err
	}
	if !ValidCurrency(req.OfferedCurrency) {
		return nil, fmt.Errorf("unsupported currency %q", req.OfferedCurrency)
	}

	listing, err := uc.repository.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.Active() {
		return nil, ErrNotFound
	}

	request := NewPurchaseRequest(uuid.New().String(), listing, req.BuyerID, offered, req.OfferedCurrency)
	if err := uc.repository.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create purchase request: %w", err)
	}

	log.Printf("✅ Purchase request proposed: %s", request.ID)
	return request, nil
}

// AcceptRequest marca um request como aceito pelo seller
func (uc *LedgerUseCase) AcceptRequest(ctx context.Context, requestID, sellerID string) (*PurchaseRequest, error) {
	return uc.mutateRequest(ctx, requestID, func(request *PurchaseRequest) error {
		if request.SellerID != sellerID {
			return ErrForbidden
		}
		return request.Accept()
	})
}

// RejectRequest marca um request como rejeitado pelo seller
func (uc *LedgerUseCase) RejectRequest(ctx context.Context, requestID, sellerID string) (*PurchaseRequest, error) {
	return uc.mutateRequest(ctx, requestID, func(request *PurchaseRequest) error {
		if request.SellerID != sellerID {
			return ErrForbidden
		}
		return request.Reject()
	})
}

// CancelRequest abandona um request proposed ou paid pelo buyer
func (uc *LedgerUseCase) CancelRequest(ctx context.Context, requestID, buyerID string) (*PurchaseRequest, error) {
	return uc.mutateRequest(ctx, requestID, func(request *PurchaseRequest) error {
		if request.BuyerID != buyerID {
			return ErrForbidden
		}
		return request.Cancel()
	})
}

// GetRequest busca um purchase request pelo ID
func (uc *LedgerUseCase) GetRequest(ctx context.Context, requestID string) (*PurchaseRequest, error) {
	return uc.repository.GetRequest(ctx, requestID)
}

// ListRequests busca purchase requests pelo filtro
func (uc *LedgerUseCase) ListRequests(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	return uc.repository.ListRequests(ctx, filter)
}

// RecordPayment é a ação SAGA que marca um request como pago.
// A autorização do buyer é verificada antes de qualquer validação de status.
func (uc *LedgerUseCase) RecordPayment(ctx context.Context, req PaymentActionRequest) error {
	log.Printf("➡️ [RECORD PAYMENT] RequestID: %s | TraceID: %s", req.RequestID, req.TraceID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := uc.repository.GetRequestForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		return err
	}
	if request.BuyerID != req.BuyerID {
		log.Printf("❌ RECORD PAYMENT FAILED: buyer mismatch | RequestID=%s", req.RequestID)
		return ErrForbidden
	}

	// Idempotency: the same payment replayed by the coordinator is a no-op
	if request.Status == RequestStatusPaid && request.PaymentTxHash == req.PaymentTxHash {
		log.Printf("ℹ️ [IDEMPOTENCY] Payment already recorded for RequestID=%s", req.RequestID)
		return nil
	}

	if err := request.RecordPayment(req.PaymentTxHash); err != nil {
		return err
	}
	if err := uc.repository.UpdateRequest(ctx, tx, request); err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	// Reserve the listing while the purchase settles
	listing, err := uc.repository.GetListingForUpdate(ctx, tx, request.ListingID)
	if err != nil {
		return err
	}
	if listing.Status == ListingStatusAvailable {
		if err := listing.Transition(ListingStatusReserved); err != nil {
			return err
		}
		if err := uc.repository.UpdateListing(ctx, tx, listing); err != nil {
			return fmt.Errorf("failed to reserve listing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}

	log.Printf("✅ [RECORD PAYMENT] Success: RequestID=%s TxHash=%s", req.RequestID, req.PaymentTxHash)
	return nil
}

// CompensatePayment reverte um pagamento registrado (compensação SAGA):
// o request vai para cancelled e o listing volta para available.
func (uc *LedgerUseCase) CompensatePayment(ctx context.Context, req PaymentActionRequest) error {
	log.Printf("↩️ [COMPENSATE PAYMENT] RequestID: %s | TraceID: %s", req.RequestID, req.TraceID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := uc.repository.GetRequestForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		return err
	}

	if request.Status == RequestStatusCancelled {
		log.Printf("ℹ️ [IDEMPOTENCY] Payment compensation already processed for RequestID=%s", req.RequestID)
		return nil
	}

	if err := request.Cancel(); err != nil {
		return err
	}
	if err := uc.repository.UpdateRequest(ctx, tx, request); err != nil {
		return fmt.Errorf("failed to compensate payment: %w", err)
	}

	listing, err := uc.repository.GetListingForUpdate(ctx, tx, request.ListingID)
	if err != nil {
		return err
	}
	if listing.Status == ListingStatusReserved {
		if err := listing.Transition(ListingStatusAvailable); err != nil {
			return err
		}
		if err := uc.repository.UpdateListing(ctx, tx, listing); err != nil {
			return fmt.Errorf("failed to release listing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment compensation: %w", err)
	}

	log.Printf("♻️  Payment compensated (cancelled): %s", req.RequestID)
	return nil
}

// CompleteRequest é a ação SAGA que finaliza um request pago:
// request vai para completed e o listing para sold.
func (uc *LedgerUseCase) CompleteRequest(ctx context.Context, req PaymentActionRequest) error {
	log.Printf("✅ [COMPLETE REQUEST] RequestID: %s | TraceID: %s", req.RequestID, req.TraceID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := uc.repository.GetRequestForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		return err
	}

	if request.Status == RequestStatusCompleted {
		log.Printf("ℹ️ [IDEMPOTENCY] Request already completed: %s", req.RequestID)
		return nil
	}

	if err := request.Complete(); err != nil {
		return err
	}
	if err := uc.repository.UpdateRequest(ctx, tx, request); err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}

	listing, err := uc.repository.GetListingForUpdate(ctx, tx, request.ListingID)
	if err != nil {
		return err
	}
	if listing.Status != ListingStatusSold {
		if err := listing.Transition(ListingStatusSold); err != nil {
			return err
		}
		if err := uc.repository.UpdateListing(ctx, tx, listing); err != nil {
			return fmt.Errorf("failed to mark listing sold: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}

	log.Printf("✅ Request completed: %s", req.RequestID)
	return nil
}

// mutateRequest aplica uma mutação de lifecycle sob lock pessimista
func (uc *LedgerUseCase) mutateRequest(ctx context.Context, requestID string, mutate func(*PurchaseRequest) error) (*PurchaseRequest, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := uc.repository.GetRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if err := mutate(request); err != nil {
		return nil, err
	}
	if err := uc.repository.UpdateRequest(ctx, tx, request); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit request update: %w", err)
	}
	return request, nil
}

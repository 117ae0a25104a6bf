package main

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrForbidden         = errors.New("caller lacks rights over the resource")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidState      = errors.New("operation not allowed in current status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("an active listing already exists for this product")
)

// Listing status constants
const (
	ListingStatusAvailable = "available"
	ListingStatusReserved  = "reserved"
	ListingStatusSold      = "sold"
)

// PurchaseRequest status constants
const (
	RequestStatusProposed  = "proposed"
	RequestStatusAccepted  = "accepted"
	RequestStatusPaid      = "paid"
	RequestStatusCompleted = "completed"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

// Supported fiat currencies
const (
	CurrencySGD = "SGD"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// ValidCurrency reports whether the given fiat currency is supported
func ValidCurrency(currency string) bool {
	switch currency {
	case CurrencySGD, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// Listing represents a seller's offer for an owned product
type Listing struct {
	ID        string          `json:"id" db:"id"`
	ProductID string          `json:"product_id" db:"product_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Currency  string          `json:"currency" db:"currency"`
	Status    string          `json:"status" db:"status"`
	Notes     string          `json:"notes" db:"notes"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// NewListing creates a new Listing in available status
func NewListing(id, productID, sellerID string, price decimal.Decimal, currency, notes string) *Listing {
	return &Listing{
		ID:        id,
		ProductID: productID,
		SellerID:  sellerID,
		Price:     price,
		Currency:  currency,
		Status:    ListingStatusAvailable,
		Notes:     notes,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Active reports whether the listing still blocks a new listing for the same product
func (l *Listing) Active() bool {
	return l.Status != ListingStatusSold
}

// Transition moves the listing to the next status.
// Allowed: available<->reserved, and any->sold. Sold is terminal.
func (l *Listing) Transition(next string) error {
	if l.Status == ListingStatusSold {
		return ErrInvalidTransition
	}

	switch next {
	case ListingStatusAvailable, ListingStatusReserved, ListingStatusSold:
	default:
		return ErrInvalidTransition
	}

	l.Status = next
	l.UpdatedAt = time.Now()
	return nil
}

// PurchaseRequest represents a buyer's proposal to buy a listing
type PurchaseRequest struct {
	ID              string          `json:"id" db:"id"`
	ProductID       string          `json:"product_id" db:"product_id"`
	ListingID       string          `json:"listing_id" db:"listing_id"`
	SellerID        string          `json:"seller_id" db:"seller_id"`
	BuyerID         string          `json:"buyer_id" db:"buyer_id"`
	OfferedPrice    decimal.Decimal `json:"offered_price" db:"offered_price"`
	OfferedCurrency string          `json:"offered_currency" db:"offered_currency"`
	Status          string          `json:"status" db:"status"`
	PaymentTxHash   string          `json:"payment_tx_hash" db:"payment_tx_hash"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// NewPurchaseRequest creates a new PurchaseRequest in proposed status
func NewPurchaseRequest(id string, listing *Listing, buyerID string, offeredPrice decimal.Decimal, offeredCurrency string) *PurchaseRequest {
	return &PurchaseRequest{
		ID:              id,
		ProductID:       listing.ProductID,
		ListingID:       listing.ID,
		SellerID:        listing.SellerID,
		BuyerID:         buyerID,
		OfferedPrice:    offeredPrice,
		OfferedCurrency: offeredCurrency,
		Status:          RequestStatusProposed,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

// Accept marks a proposed request as accepted by the seller
func (r *PurchaseRequest) Accept() error {
	if r.Status != RequestStatusProposed {
		return ErrInvalidState
	}
	r.Status = RequestStatusAccepted
	r.UpdatedAt = time.Now()
	return nil
}

// RecordPayment moves a proposed or accepted request to paid.
// The payment transaction hash is only ever set here.
func (r *PurchaseRequest) RecordPayment(txHash string) error {
	if r.Status != RequestStatusProposed && r.Status != RequestStatusAccepted {
		return ErrInvalidState
	}
	r.Status = RequestStatusPaid
	r.PaymentTxHash = txHash
	r.UpdatedAt = time.Now()
	return nil
}

// Complete finalizes a paid request
func (r *PurchaseRequest) Complete() error {
	if r.Status != RequestStatusPaid {
		return ErrInvalidState
	}
	r.Status = RequestStatusCompleted
	r.UpdatedAt = time.Now()
	return nil
}

// Reject marks a proposed request as rejected by the seller
func (r *PurchaseRequest) Reject() error {
	if r.Status != RequestStatusProposed {
		return ErrInvalidState
	}
	r.Status = RequestStatusRejected
	r.UpdatedAt = time.Now()
	return nil
}

// Cancel abandons a proposed or paid request
func (r *PurchaseRequest) Cancel() error {
	if r.Status != RequestStatusProposed && r.Status != RequestStatusPaid {
		return ErrInvalidState
	}
	r.Status = RequestStatusCancelled
	r.UpdatedAt = time.Now()
	return nil
}

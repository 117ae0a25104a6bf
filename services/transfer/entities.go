package main

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("no ownership record for product")
	ErrNotCurrentOwner   = errors.New("not current owner")
	ErrConflict          = errors.New("product already registered")
	ErrTransactionFailed = errors.New("chain transaction failed")
)

// OwnershipRecord represents a time-ranged assertion of who owned a product.
// EndOn nil means the record is open and its owner is the current one;
// exactly one open record exists per product.
type OwnershipRecord struct {
	ID             string     `json:"id" db:"id"`
	ProductID      string     `json:"product_id" db:"product_id"`
	OwnerID        string     `json:"owner_id" db:"owner_id"`
	OwnerPublicKey string     `json:"owner_public_key" db:"owner_public_key"`
	StartOn        time.Time  `json:"start_on" db:"start_on"`
	EndOn          *time.Time `json:"end_on" db:"end_on"`
	TxHash         string     `json:"tx_hash" db:"tx_hash"`
}

// NewOwnershipRecord creates an open ownership record starting now
func NewOwnershipRecord(id, productID, ownerID, ownerPublicKey, txHash string) *OwnershipRecord {
	return &OwnershipRecord{
		ID:             id,
		ProductID:      productID,
		OwnerID:        ownerID,
		OwnerPublicKey: ownerPublicKey,
		StartOn:        time.Now(),
		TxHash:         txHash,
	}
}

// Open reports whether the record still marks the current owner
func (r *OwnershipRecord) Open() bool {
	return r.EndOn == nil
}

// TransferResult reports the outcome of one product in a batch transfer.
// It is never persisted; it only travels back to the caller.
type TransferResult struct {
	ProductID string `json:"product_id"`
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	TxHash    string `json:"tx_hash,omitempty"`
}

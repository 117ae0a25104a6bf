package main

import (
	"errors"
	"time"
)

var (
	ErrForbidden          = errors.New("caller lacks rights over the resource")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidState       = errors.New("operation not allowed in current status")
	ErrWalletNotConnected = errors.New("buyer wallet is not connected")
	ErrInvalidRecipient   = errors.New("seller has no registered wallet")
	ErrQuoteUnavailable   = errors.New("price oracle has no rate for this currency")
	ErrTransactionFailed  = errors.New("chain transaction failed")
)

// Wallet representa o endereço on-chain registrado de um usuário
type Wallet struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewWallet cria uma nova instância de Wallet
func NewWallet(id, userID, address string) *Wallet {
	return &Wallet{
		ID:        id,
		UserID:    userID,
		Address:   address,
		CreatedAt: time.Now(),
	}
}

// Connected reports whether the wallet can sign and receive transactions
func (w *Wallet) Connected() bool {
	return w != nil && w.Address != ""
}

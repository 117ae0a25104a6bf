package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletRepository define a interface para o registro de wallets
type WalletRepository interface {
	GetWalletByUserID(ctx context.Context, userID string) (*Wallet, error)
	UpsertWallet(ctx context.Context, wallet *Wallet) error
}

// PostgresWalletRepository implementa WalletRepository usando PostgreSQL
type PostgresWalletRepository struct {
	db *pgxpool.Pool
}

// NewWalletRepository cria uma nova instância de PostgresWalletRepository
func NewWalletRepository(db *pgxpool.Pool) WalletRepository {
	return &PostgresWalletRepository{
		db: db,
	}
}

// GetWalletByUserID busca a wallet registrada do usuário
func (r *PostgresWalletRepository) GetWalletByUserID(ctx context.Context, userID string) (*Wallet, error) {
	var wallet Wallet
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, address, created_at
		FROM wallets
		WHERE user_id = $1
	`, userID).Scan(&wallet.ID, &wallet.UserID, &wallet.Address, &wallet.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// UpsertWallet registra ou substitui o endereço da wallet do usuário
func (r *PostgresWalletRepository) UpsertWallet(ctx context.Context, wallet *Wallet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallets (id, user_id, address, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address
	`, wallet.ID, wallet.UserID, wallet.Address, wallet.CreatedAt)
	return err
}

package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository define a interface para operações de banco de dados do ledger
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	GetListing(ctx context.Context, listingID string) (*Listing, error)
	GetListingForUpdate(ctx context.Context, tx Tx, listingID string) (*Listing, error)
	// ActiveListingExists verifica se já existe um listing não vendido para o produto
	ActiveListingExists(ctx context.Context, tx Tx, productID string) (bool, error)
	CreateListing(ctx context.Context, tx Tx, listing *Listing) error
	UpdateListing(ctx context.Context, tx Tx, listing *Listing) error
	DeleteListing(ctx context.Context, tx Tx, listingID string) error
	ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error)

	GetRequest(ctx context.Context, requestID string) (*PurchaseRequest, error)
	GetRequestForUpdate(ctx context.Context, tx Tx, requestID string) (*PurchaseRequest, error)
	CreateRequest(ctx context.Context, request *PurchaseRequest) error
	UpdateRequest(ctx context.Context, tx Tx, request *PurchaseRequest) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error)
}

// ListingFilter restringe o resultado de ListListings
type ListingFilter struct {
	ProductID string
	SellerID  string
	Status    string
}

// RequestFilter restringe o resultado de ListRequests
type RequestFilter struct {
	BuyerID  string
	SellerID string
	Status   string
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// PostgresLedgerRepository implementa Repository usando PostgreSQL
type PostgresLedgerRepository struct {
	db *pgxpool.Pool
}

// NewLedgerRepository cria uma nova instância de PostgresLedgerRepository
func NewLedgerRepository(db *pgxpool.Pool) Repository {
	return &PostgresLedgerRepository{
		db: db,
	}
}

// BeginTx inicia uma nova transação
func (r *PostgresLedgerRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

const listingColumns = "id, product_id, seller_id, price, currency, status, notes, created_at, updated_at"

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.ProductID, &l.SellerID, &l.Price, &l.Currency, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListing busca um listing pelo ID
func (r *PostgresLedgerRepository) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	return scanListing(r.db.QueryRow(ctx, `
		SELECT `+listingColumns+`
		FROM listings WHERE id = $1
	`, listingID))
}

// GetListingForUpdate busca um listing com lock pessimista (FOR UPDATE)
func (r *PostgresLedgerRepository) GetListingForUpdate(ctx context.Context, tx Tx, listingID string) (*Listing, error) {
	pgTx := tx.(*PostgresTx).tx
	return scanListing(pgTx.QueryRow(ctx, `
		SELECT `+listingColumns+`
		FROM listings WHERE id = $1
		FOR UPDATE
	`, listingID))
}

// ActiveListingExists verifica a invariante de no máximo um listing ativo por produto
func (r *PostgresLedgerRepository) ActiveListingExists(ctx context.Context, tx Tx, productID string) (bool, error) {
	pgTx := tx.(*PostgresTx).tx

	var exists bool
	err := pgTx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM listings
			WHERE product_id = $1 AND status != $2
		)
	`, productID, ListingStatusSold).Scan(&exists)
	return exists, err
}

// CreateListing cria um novo listing no banco de dados
func (r *PostgresLedgerRepository) CreateListing(ctx context.Context, tx Tx, listing *Listing) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		INSERT INTO listings (id, product_id, seller_id, price, currency, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, listing.ID, listing.ProductID, listing.SellerID, listing.Price, listing.Currency, listing.Status, listing.Notes, listing.CreatedAt, listing.UpdatedAt)
	return err
}

// UpdateListing persiste price, currency, status e notes de um listing
func (r *PostgresLedgerRepository) UpdateListing(ctx context.Context, tx Tx, listing *Listing) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE listings
		SET price = $1, currency = $2, status = $3, notes = $4, updated_at = NOW()
		WHERE id = $5
	`, listing.Price, listing.Currency, listing.Status, listing.Notes, listing.ID)
	return err
}

// DeleteListing remove um listing (apenas permitido enquanto não vendido, validado no use case)
func (r *PostgresLedgerRepository) DeleteListing(ctx context.Context, tx Tx, listingID string) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `DELETE FROM listings WHERE id = $1`, listingID)
	return err
}

// ListListings busca listings pelo filtro
func (r *PostgresLedgerRepository) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2 = '' OR seller_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`, filter.ProductID, filter.SellerID, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.ProductID, &l.SellerID, &l.Price, &l.Currency, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

const requestColumns = "id, product_id, listing_id, seller_id, buyer_id, offered_price, offered_currency, status, payment_tx_hash, created_at, updated_at"

func scanRequest(row pgx.Row) (*PurchaseRequest, error) {
	var pr PurchaseRequest
	err := row.Scan(&pr.ID, &pr.ProductID, &pr.ListingID, &pr.SellerID, &pr.BuyerID, &pr.OfferedPrice, &pr.OfferedCurrency, &pr.Status, &pr.PaymentTxHash, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// GetRequest busca um purchase request pelo ID
func (r *PostgresLedgerRepository) GetRequest(ctx context.Context, requestID string) (*PurchaseRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM purchase_requests WHERE id = $1
	`, requestID))
}

// GetRequestForUpdate busca um purchase request com lock pessimista (FOR UPDATE)
func (r *PostgresLedgerRepository) GetRequestForUpdate(ctx context.Context, tx Tx, requestID string) (*PurchaseRequest, error) {
	pgTx := tx.(*PostgresTx).tx
	return scanRequest(pgTx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM purchase_requests WHERE id = $1
		FOR UPDATE
	`, requestID))
}

// CreateRequest cria um novo purchase request no banco de dados
func (r *PostgresLedgerRepository) CreateRequest(ctx context.Context, request *PurchaseRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO purchase_requests (id, product_id, listing_id, seller_id, buyer_id, offered_price, offered_currency, status, payment_tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, request.ID, request.ProductID, request.ListingID, request.SellerID, request.BuyerID,
		request.OfferedPrice, request.OfferedCurrency, request.Status, request.PaymentTxHash,
		request.CreatedAt, request.UpdatedAt)
	return err
}

// UpdateRequest persiste status e payment_tx_hash de um purchase request
func (r *PostgresLedgerRepository) UpdateRequest(ctx context.Context, tx Tx, request *PurchaseRequest) error {
	pgTx := tx.(*PostgresTx).tx
	_, err := pgTx.Exec(ctx, `
		UPDATE purchase_requests
		SET status = $1, payment_tx_hash = $2, updated_at = NOW()
		WHERE id = $3
	`, request.Status, request.PaymentTxHash, request.ID)
	return err
}

// ListRequests busca purchase requests pelo filtro
func (r *PostgresLedgerRepository) ListRequests(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM purchase_requests
		WHERE ($1 = '' OR buyer_id = $1)
		  AND ($2 = '' OR seller_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`, filter.BuyerID, filter.SellerID, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []PurchaseRequest{}
	for rows.Next() {
		var pr PurchaseRequest
		if err := rows.Scan(&pr.ID, &pr.ProductID, &pr.ListingID, &pr.SellerID, &pr.BuyerID, &pr.OfferedPrice, &pr.OfferedCurrency, &pr.Status, &pr.PaymentTxHash, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, pr)
	}
	return requests, rows.Err()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OwnershipRepository define a interface para operações de banco de dados de ownership
type OwnershipRepository interface {
	BeginTx(ctx context.Context) (Tx, error)

	// GetCurrentRecord retorna o registro aberto (end_on IS NULL) do produto
	GetCurrentRecord(ctx context.Context, productID string) (*OwnershipRecord, error)
	// GetCurrentRecordForUpdate idem, com lock pessimista (FOR UPDATE)
	GetCurrentRecordForUpdate(ctx context.Context, tx Tx, productID string) (*OwnershipRecord, error)
	// CloseAndOpen fecha o registro atual e abre o novo na mesma transação,
	// preservando a invariante de exatamente um registro aberto por produto
	CloseAndOpen(ctx context.Context, tx Tx, current *OwnershipRecord, next *OwnershipRecord) error
	// CreateGenesisRecord abre o primeiro registro de um produto
	CreateGenesisRecord(ctx context.Context, record *OwnershipRecord) error
	// History retorna todos os registros do produto, mais recente primeiro
	History(ctx context.Context, productID string) ([]OwnershipRecord, error)
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

// PostgresOwnershipRepository implementa OwnershipRepository usando PostgreSQL
type PostgresOwnershipRepository struct {
	db *pgxpool.Pool
}

// NewOwnershipRepository cria uma nova instância de PostgresOwnershipRepository
func NewOwnershipRepository(db *pgxpool.Pool) OwnershipRepository {
	return &PostgresOwnershipRepository{
		db: db,
	}
}

// BeginTx inicia uma nova transação
func (r *PostgresOwnershipRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

const recordColumns = "id, product_id, owner_id, owner_public_key, start_on, end_on, tx_hash"

func scanRecord(row pgx.Row) (*OwnershipRecord, error) {
	var rec OwnershipRecord
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.OwnerID, &rec.OwnerPublicKey, &rec.StartOn, &rec.EndOn, &rec.TxHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetCurrentRecord retorna o registro aberto do produto
func (r *PostgresOwnershipRepository) GetCurrentRecord(ctx context.Context, productID string) (*OwnershipRecord, error) {
	return scanRecord(r.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM ownership_records
		WHERE product_id = $1 AND end_on IS NULL
	`, productID))
}

// GetCurrentRecordForUpdate retorna o registro aberto com lock pessimista
func (r *PostgresOwnershipRepository) GetCurrentRecordForUpdate(ctx context.Context, tx Tx, productID string) (*OwnershipRecord, error) {
	pgTx := tx.(*PostgresTx).tx
	return scanRecord(pgTx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM ownership_records
		WHERE product_id = $1 AND end_on IS NULL
		FOR UPDATE
	`, productID))
}

// CloseAndOpen fecha o registro atual (end_on = NOW) e abre o novo
func (r *PostgresOwnershipRepository) CloseAndOpen(ctx context.Context, tx Tx, current *OwnershipRecord, next *OwnershipRecord) error {
	pgTx := tx.(*PostgresTx).tx

	closedOn := time.Now()
	tag, err := pgTx.Exec(ctx, `
		UPDATE ownership_records
		SET end_on = $1
		WHERE id = $2 AND end_on IS NULL
	`, closedOn, current.ID)
	if err != nil {
		return fmt.Errorf("failed to close ownership record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Someone else closed it between our read and this write
		return ErrNotCurrentOwner
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO ownership_records (id, product_id, owner_id, owner_public_key, start_on, end_on, tx_hash)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
	`, next.ID, next.ProductID, next.OwnerID, next.OwnerPublicKey, next.StartOn, next.TxHash)
	if err != nil {
		return fmt.Errorf("failed to open ownership record: %w", err)
	}

	current.EndOn = &closedOn
	return nil
}

// CreateGenesisRecord abre o primeiro registro de ownership de um produto
func (r *PostgresOwnershipRepository) CreateGenesisRecord(ctx context.Context, record *OwnershipRecord) error {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ownership_records WHERE product_id = $1
		)
	`, record.ProductID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO ownership_records (id, product_id, owner_id, owner_public_key, start_on, end_on, tx_hash)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
	`, record.ID, record.ProductID, record.OwnerID, record.OwnerPublicKey, record.StartOn, record.TxHash)
	return err
}

// History retorna todos os registros de ownership do produto
func (r *PostgresOwnershipRepository) History(ctx context.Context, productID string) ([]OwnershipRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM ownership_records
		WHERE product_id = $1
		ORDER BY start_on DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []OwnershipRecord{}
	for rows.Next() {
		var rec OwnershipRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.OwnerID, &rec.OwnerPublicKey, &rec.StartOn, &rec.EndOn, &rec.TxHash); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

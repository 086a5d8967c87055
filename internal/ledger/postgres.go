package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal persists relayed transactions in PostgreSQL.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// Record inserts entry. A second entry for the same transaction hash
// returns ErrDuplicateEntry.
func (j *PostgresJournal) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	const query = `
        INSERT INTO relay_transactions (id, phone_number, kind, tx_hash, wallet_address, to_address, amount)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at`
	err := j.db.QueryRow(ctx, query,
		entry.ID, entry.Phone, entry.Kind, entry.TxHash.Hex(), entry.Wallet.Hex(), entry.To.Hex(), entry.Amount,
	).Scan(&entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, ErrDuplicateEntry
		}
		return Entry{}, fmt.Errorf("record %s: %w", entry.Kind, err)
	}
	return entry, nil
}

// ListByPhone returns the newest entries for phone first.
func (j *PostgresJournal) ListByPhone(ctx context.Context, phone string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
        SELECT id, phone_number, kind, tx_hash, wallet_address, to_address, amount, created_at
        FROM relay_transactions
        WHERE phone_number = $1
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := j.db.Query(ctx, query, phone, limit)
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e                    Entry
			txHash, wallet, dest string
		)
		if err := row.Scan(&e.ID, &e.Phone, &e.Kind, &txHash, &wallet, &dest, &e.Amount, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.TxHash = common.HexToHash(txHash)
		e.Wallet = common.HexToAddress(wallet)
		e.To = common.HexToAddress(dest)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

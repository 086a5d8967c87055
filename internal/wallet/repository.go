package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDeployment is returned when no contract of a kind has been recorded.
var ErrNoDeployment = errors.New("no recorded deployment")

// Repository remembers shared contract deployments so they can be reused.
type Repository interface {
	Get(ctx context.Context, kind string) (common.Address, error)
	Save(ctx context.Context, kind string, address common.Address) error
}

// PostgresRepository stores deployments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save records address for kind, replacing any previous one.
func (r *PostgresRepository) Save(ctx context.Context, kind string, address common.Address) error {
	_, err := r.db.Exec(ctx, `INSERT INTO safe_deployments (kind, address)
        VALUES ($1, $2)
        ON CONFLICT (kind) DO UPDATE SET address = EXCLUDED.address, created_at = NOW()`, kind, address.Hex())
	return err
}

// Get fetches the recorded address for kind.
func (r *PostgresRepository) Get(ctx context.Context, kind string) (common.Address, error) {
	var hex string
	err := r.db.QueryRow(ctx, `SELECT address FROM safe_deployments WHERE kind = $1`, kind).Scan(&hex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, ErrNoDeployment
		}
		return common.Address{}, err
	}
	return common.HexToAddress(hex), nil
}

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]common.Address
}

// NewMemoryRepository constructs an in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]common.Address)}
}

func (r *memoryRepository) Save(_ context.Context, kind string, address common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[kind] = address
	return nil
}

func (r *memoryRepository) Get(_ context.Context, kind string) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.storage[kind]
	if !ok {
		return common.Address{}, ErrNoDeployment
	}
	return addr, nil
}

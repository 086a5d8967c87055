package identity

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no user is registered for a phone.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned when a phone is registered twice.
	ErrAlreadyExists = errors.New("user already exists")
)

const uniqueViolation = "23505"

// Repository persists users. Records are immutable once created.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (phone_number, address, encrypted_private_key, safe_address, deployed_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		user.Phone, user.OwnerAddress.Hex(), user.EncryptedOwnerKey, user.WalletAddress.Hex(), user.DeployedBy.Hex(), user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT phone_number, address, encrypted_private_key, safe_address, deployed_by, created_at
        FROM users WHERE phone_number = $1`, phone)
	var (
		user                    User
		owner, wallet, deployer string
		createdAt               time.Time
	)
	if err := row.Scan(&user.Phone, &owner, &user.EncryptedOwnerKey, &wallet, &deployer, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.OwnerAddress = common.HexToAddress(owner)
	user.WalletAddress = common.HexToAddress(wallet)
	user.DeployedBy = common.HexToAddress(deployer)
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

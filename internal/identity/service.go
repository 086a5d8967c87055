package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/wallet"
)

var (
	// ErrStoreUnavailable wraps failures of the user store itself.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrKeyMismatch means decrypted key material does not belong to the
	// recorded owner address.
	ErrKeyMismatch = errors.New("owner key does not match owner address")
)

// Sealer encrypts and decrypts owner key material at rest.
type Sealer interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(encoded string) ([]byte, error)
}

// Provisioner deploys a Safe for a new owner.
type Provisioner interface {
	Provision(ctx context.Context, owner common.Address) (wallet.Provisioned, error)
}

// Service manages the phone to wallet directory.
type Service struct {
	repo        Repository
	sealer      Sealer
	provisioner Provisioner
	journal     ledger.Journal
	deployer    common.Address
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new identity service. deployer is recorded as the
// account that paid for each Safe.
func NewService(repo Repository, sealer Sealer, provisioner Provisioner, journal ledger.Journal, deployer common.Address, logger *slog.Logger) *Service {
	if journal == nil {
		journal = ledger.NewMemoryJournal()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:        repo,
		sealer:      sealer,
		provisioner: provisioner,
		journal:     journal,
		deployer:    deployer,
		logger:      logger,
		now:         time.Now,
	}
}

// Lookup returns the user registered for phone or ErrNotFound.
func (s *Service) Lookup(ctx context.Context, phone string) (User, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

// RegisterIfNeeded returns the existing record for phone, or generates an
// owner key, deploys a Safe for it and stores the new record.
func (s *Service) RegisterIfNeeded(ctx context.Context, phone string) (Registration, error) {
	existing, err := s.Lookup(ctx, phone)
	if err == nil {
		return Registration{User: existing}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Registration{}, err
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return Registration{}, fmt.Errorf("generate owner key: %w", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	sealed, err := s.sealer.Encrypt([]byte(hexutil.Encode(crypto.FromECDSA(key))))
	if err != nil {
		return Registration{}, fmt.Errorf("seal owner key: %w", err)
	}

	provisioned, err := s.provisioner.Provision(ctx, owner)
	if err != nil {
		return Registration{}, err
	}

	user := User{
		Phone:             phone,
		OwnerAddress:      owner,
		EncryptedOwnerKey: sealed,
		WalletAddress:     provisioned.Address,
		DeployedBy:        s.deployer,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.logger.Warn("concurrent registration, keeping stored record", "phone", phone, "orphaned_safe", provisioned.Address.Hex())
			stored, lookupErr := s.Lookup(ctx, phone)
			if lookupErr != nil {
				return Registration{}, lookupErr
			}
			return Registration{User: stored}, nil
		}
		return Registration{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.journal.Record(ctx, ledger.Entry{
		Phone:  phone,
		Kind:   ledger.KindProvision,
		TxHash: provisioned.TxHash,
		Wallet: provisioned.Address,
		To:     owner,
	}); err != nil {
		s.logger.Warn("journal provision failed", "phone", phone, "error", err)
	}

	s.logger.Info("user registered", "phone", phone, "safe", user.WalletAddress.Hex())
	return Registration{User: user, Created: true}, nil
}

// OwnerKey decrypts the owner key of user.
func (s *Service) OwnerKey(_ context.Context, user User) (*ecdsa.PrivateKey, error) {
	plain, err := s.sealer.Decrypt(user.EncryptedOwnerKey)
	if err != nil {
		return nil, fmt.Errorf("open owner key: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(string(plain), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse owner key: %w", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != user.OwnerAddress {
		return nil, ErrKeyMismatch
	}
	return key, nil
}

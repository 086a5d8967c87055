package funding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/wallet"
)

// DefaultAmount is minted when a request names no amount.
var DefaultAmount = decimal.NewFromInt(1)

// ErrInvalidAmount indicates the amount is zero in token base units or
// does not fit in uint256.
var ErrInvalidAmount = errors.New("amount must be positive")

// Directory resolves phone numbers to registered wallets.
type Directory interface {
	Lookup(ctx context.Context, phone string) (identity.User, error)
}

// Service mints test tokens into users' Safes.
type Service struct {
	minter    Minter
	directory Directory
	token     wallet.Token
	journal   ledger.Journal
	logger    *slog.Logger
}

// NewService builds a funding service.
func NewService(minter Minter, directory Directory, token wallet.Token, journal ledger.Journal, logger *slog.Logger) *Service {
	if journal == nil {
		journal = ledger.NewMemoryJournal()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{minter: minter, directory: directory, token: token, journal: journal, logger: logger}
}

// MintInput captures a mint request in whole token units. A zero Amount
// means DefaultAmount.
type MintInput struct {
	Phone  string
	Amount decimal.Decimal
}

// MintResult describes a mined mint.
type MintResult struct {
	TxHash      common.Hash
	Safe        common.Address
	Amount      decimal.Decimal
	CompletedAt time.Time
}

// Mint credits the caller's Safe with freshly minted tokens.
func (s *Service) Mint(ctx context.Context, input MintInput) (MintResult, error) {
	user, err := s.directory.Lookup(ctx, input.Phone)
	if err != nil {
		return MintResult{}, err
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = DefaultAmount
	}
	base, ok := s.token.BaseUnits(amount)
	if !ok {
		return MintResult{}, ErrInvalidAmount
	}

	receipt, err := s.minter.Mint(ctx, user.WalletAddress, base)
	if err != nil {
		return MintResult{}, err
	}

	result := MintResult{
		TxHash:      receipt.TxHash,
		Safe:        user.WalletAddress,
		Amount:      amount,
		CompletedAt: time.Now().UTC(),
	}

	if _, err := s.journal.Record(ctx, ledger.Entry{
		Phone:  input.Phone,
		Kind:   ledger.KindMint,
		TxHash: result.TxHash,
		Wallet: result.Safe,
		To:     result.Safe,
		Amount: amount.String(),
	}); err != nil {
		s.logger.Warn("journal mint failed", "phone", input.Phone, "error", err)
	}

	s.logger.Info("tokens minted", "phone", input.Phone, "safe", result.Safe.Hex(), "amount", amount.String(), "tx", result.TxHash.Hex())
	return result, nil
}

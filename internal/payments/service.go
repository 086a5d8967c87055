package payments

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/safe"
	"github.com/congo-pay/safetext/internal/wallet"
)

// ExecGasLimit is the fixed gas limit for execTransaction submissions.
const ExecGasLimit = 3_000_000

var (
	// ErrInvalidAddress indicates the destination is not a hex address.
	ErrInvalidAddress = errors.New("invalid destination address")
	// ErrInvalidAmount indicates the amount is zero in token base units or
	// does not fit in uint256.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Directory resolves phone numbers to registered wallets and their keys.
type Directory interface {
	Lookup(ctx context.Context, phone string) (identity.User, error)
	OwnerKey(ctx context.Context, user identity.User) (*ecdsa.PrivateKey, error)
}

// Options tunes transfer execution.
type Options struct {
	// VerifyHash cross-checks the contract's transaction hash against a
	// locally computed EIP-712 hash before signing.
	VerifyHash bool
}

// Service relays token transfers out of users' Safes.
type Service struct {
	ledger    ledger.Ledger
	directory Directory
	token     wallet.Token
	journal   ledger.Journal
	opts      Options
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(l ledger.Ledger, directory Directory, token wallet.Token, journal ledger.Journal, opts Options, logger *slog.Logger) *Service {
	if journal == nil {
		journal = ledger.NewMemoryJournal()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: l, directory: directory, token: token, journal: journal, opts: opts, logger: logger}
}

// TransferInput captures a transfer request in whole token units.
type TransferInput struct {
	Phone  string
	To     string
	Amount decimal.Decimal
}

// TransferResult describes an executed Safe transaction.
type TransferResult struct {
	TxHash      common.Hash
	Safe        common.Address
	To          common.Address
	Amount      decimal.Decimal
	SafeTxHash  common.Hash
	CompletedAt time.Time
}

// Transfer moves Amount of the token from the sender's Safe to To. The
// owner signs the Safe transaction and the relayer submits and pays for it.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	user, err := s.directory.Lookup(ctx, input.Phone)
	if err != nil {
		return TransferResult{}, err
	}

	if !common.IsHexAddress(input.To) {
		return TransferResult{}, ErrInvalidAddress
	}
	to := common.HexToAddress(input.To)

	base, ok := s.token.BaseUnits(input.Amount)
	if !ok {
		return TransferResult{}, ErrInvalidAmount
	}

	key, err := s.directory.OwnerKey(ctx, user)
	if err != nil {
		return TransferResult{}, err
	}

	tx, err := s.buildTransaction(ctx, user.WalletAddress, safe.PackTransfer(to, base))
	if err != nil {
		return TransferResult{}, err
	}

	safeTxHash, err := s.transactionHash(ctx, user.WalletAddress, tx)
	if err != nil {
		return TransferResult{}, err
	}

	signature, err := safe.SignHash(key, safeTxHash)
	if err != nil {
		return TransferResult{}, err
	}

	receipt, err := s.ledger.Send(ctx, user.WalletAddress, safe.PackExecTransaction(tx, signature), ExecGasLimit)
	if err != nil {
		return TransferResult{}, err
	}

	result := TransferResult{
		TxHash:      receipt.TxHash,
		Safe:        user.WalletAddress,
		To:          to,
		Amount:      input.Amount,
		SafeTxHash:  safeTxHash,
		CompletedAt: time.Now().UTC(),
	}

	if _, err := s.journal.Record(ctx, ledger.Entry{
		Phone:  input.Phone,
		Kind:   ledger.KindTransfer,
		TxHash: result.TxHash,
		Wallet: result.Safe,
		To:     to,
		Amount: input.Amount.String(),
	}); err != nil {
		s.logger.Warn("journal transfer failed", "phone", input.Phone, "error", err)
	}

	s.logger.Info("transfer executed", "phone", input.Phone, "safe", result.Safe.Hex(), "to", to.Hex(), "amount", input.Amount.String(), "tx", result.TxHash.Hex())
	return result, nil
}

// buildTransaction reads the Safe's current nonce and wraps data as a
// zero-value call to the token.
func (s *Service) buildTransaction(ctx context.Context, account common.Address, data []byte) (safe.Transaction, error) {
	out, err := s.ledger.Call(ctx, account, safe.PackNonce())
	if err != nil {
		return safe.Transaction{}, err
	}
	nonce, err := safe.UnpackUint(safe.SafeABI, "nonce", out)
	if err != nil {
		return safe.Transaction{}, &ledger.ChainError{Op: "nonce", Err: err}
	}
	return safe.NewCall(s.token.Address, data, nonce), nil
}

func (s *Service) transactionHash(ctx context.Context, account common.Address, tx safe.Transaction) (common.Hash, error) {
	out, err := s.ledger.Call(ctx, account, safe.PackGetTransactionHash(tx))
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := safe.UnpackHash(out)
	if err != nil {
		return common.Hash{}, &ledger.ChainError{Op: "getTransactionHash", Err: err}
	}

	if s.opts.VerifyHash {
		chainID, err := s.ledger.ChainID(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		if local := safe.TransactionHash(chainID, account, tx); local != hash {
			return common.Hash{}, fmt.Errorf("%w: contract %s, local %s", safe.ErrHashMismatch, hash.Hex(), local.Hex())
		}
	}
	return hash, nil
}

package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/safe"
)

const nativeDecimals = 18

// Token identifies the fixed ERC-20 the relay operates on.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// Service exposes balance reads backed by the ledger.
type Service struct {
	ledger       ledger.Ledger
	token        Token
	nativeSymbol string
}

// NewService builds a wallet service instance.
func NewService(l ledger.Ledger, token Token, nativeSymbol string) *Service {
	return &Service{ledger: l, token: token, nativeSymbol: nativeSymbol}
}

// ErrDecimalsMismatch is returned when the token contract reports different
// decimals than configured.
var ErrDecimalsMismatch = errors.New("token decimals mismatch")

// CheckToken reads decimals() from the token contract and requires it to
// match the configured value.
func (s *Service) CheckToken(ctx context.Context) error {
	out, err := s.ledger.Call(ctx, s.token.Address, safe.PackDecimals())
	if err != nil {
		return err
	}
	decimals, err := safe.UnpackDecimals(out)
	if err != nil {
		return &ledger.ChainError{Op: "decimals", Err: err}
	}
	if int32(decimals) != s.token.Decimals {
		return fmt.Errorf("%w: %s reports %d, configured %d", ErrDecimalsMismatch, s.token.Address.Hex(), decimals, s.token.Decimals)
	}
	return nil
}

// NativeBalance returns the native coin balance of address.
func (s *Service) NativeBalance(ctx context.Context, address common.Address) (Balance, error) {
	raw, err := s.ledger.NativeBalance(ctx, address)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Address: address,
		Symbol:  s.nativeSymbol,
		Amount:  decimal.NewFromBigInt(raw, -nativeDecimals),
		Raw:     raw,
		AsOf:    time.Now().UTC(),
	}, nil
}

// TokenBalance returns the token balance of address.
func (s *Service) TokenBalance(ctx context.Context, address common.Address) (Balance, error) {
	out, err := s.ledger.Call(ctx, s.token.Address, safe.PackBalanceOf(address))
	if err != nil {
		return Balance{}, err
	}
	raw, err := safe.UnpackUint(safe.TokenABI, "balanceOf", out)
	if err != nil {
		return Balance{}, &ledger.ChainError{Op: "balanceOf", Err: err}
	}
	return Balance{
		Address: address,
		Symbol:  s.token.Symbol,
		Amount:  decimal.NewFromBigInt(raw, -s.token.Decimals),
		Raw:     raw,
		AsOf:    time.Now().UTC(),
	}, nil
}

// maxBaseDigits is the decimal width of 2^256-1.
const maxBaseDigits = 78

// BaseUnits converts a whole-unit amount to a uint256 count of token base
// units, truncating anything below the smallest unit. It reports false when
// the result is zero, negative or does not fit in uint256.
func (t Token) BaseUnits(amount decimal.Decimal) (*big.Int, bool) {
	if !amount.IsPositive() {
		return nil, false
	}
	// Bound the exponent before shifting so huge or tiny scales never
	// allocate.
	exp := int64(amount.Exponent()) + int64(t.Decimals)
	if exp < -maxBaseDigits || int64(amount.NumDigits())+exp > maxBaseDigits {
		return nil, false
	}
	base := amount.Shift(t.Decimals).Truncate(0).BigInt()
	if base.Sign() <= 0 || base.BitLen() > 256 {
		return nil, false
	}
	return base, true
}

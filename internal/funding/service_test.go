package funding

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/ledger/ledgertest"
	"github.com/congo-pay/safetext/internal/wallet"
)

var testToken = common.HexToAddress("0xa3B2a4b2E6fA1a0Cf2bA3a1c0B0d5A1d9C8e6690")

type staticDirectory map[string]identity.User

func (d staticDirectory) Lookup(_ context.Context, phone string) (identity.User, error) {
	u, ok := d[phone]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func newService(chain *ledgertest.Chain, decimals int32) (*Service, identity.User) {
	user := identity.User{Phone: "+15550001111", WalletAddress: common.HexToAddress("0x00000000000000000000000000000000000005af"), CreatedAt: time.Now()}
	token := wallet.Token{Address: testToken, Symbol: "USDC", Decimals: decimals}
	svc := NewService(NewRelayerMinter(chain, testToken), staticDirectory{user.Phone: user}, token, nil, nil)
	return svc, user
}

func TestMintDefaultsToOneUnit(t *testing.T) {
	chain := ledgertest.New(testToken, 18)
	svc, user := newService(chain, 18)

	res, err := svc.Mint(context.Background(), MintInput{Phone: user.Phone})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := chain.TokenBalance(user.WalletAddress); got.Cmp(want) != 0 {
		t.Fatalf("expected %s base units, got %s", want, got)
	}
	if !res.Amount.Equal(decimal.NewFromInt(1)) || res.Safe != user.WalletAddress {
		t.Fatalf("unexpected result %+v", res)
	}

	sent := chain.Sent()
	if len(sent) != 1 || sent[0].To != testToken || sent[0].Gas != ledgertest.EstimatedGas+mintGasBuffer {
		t.Fatalf("expected one mint call to the token, got %+v", sent)
	}
}

func TestMintFractionalAmount(t *testing.T) {
	chain := ledgertest.New(testToken, 6)
	svc, user := newService(chain, 6)

	if _, err := svc.Mint(context.Background(), MintInput{Phone: user.Phone, Amount: decimal.RequireFromString("2.75")}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := chain.TokenBalance(user.WalletAddress); got.Int64() != 2_750_000 {
		t.Fatalf("expected 2750000, got %s", got)
	}
}

func TestMintFailures(t *testing.T) {
	chain := ledgertest.New(testToken, 6)
	svc, user := newService(chain, 6)

	if _, err := svc.Mint(context.Background(), MintInput{Phone: "+1"}); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected not registered, got %v", err)
	}
	if _, err := svc.Mint(context.Background(), MintInput{Phone: user.Phone, Amount: decimal.RequireFromString("0.0000001")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	for _, exp := range []int32{75, 999_999_999} {
		if _, err := svc.Mint(context.Background(), MintInput{Phone: user.Phone, Amount: decimal.New(1, exp)}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for 1e%d, got %v", exp, err)
		}
	}
	if sent := chain.Sent(); len(sent) != 0 {
		t.Fatalf("rejected mints must not reach the chain, got %d sends", len(sent))
	}

	chain.SendErr = errors.New("caller is not a minter")
	if _, err := svc.Mint(context.Background(), MintInput{Phone: user.Phone}); !errors.Is(err, ledger.ErrChain) {
		t.Fatalf("expected chain error, got %v", err)
	}
}

package dispatch

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/wallet"
)

func TestRepliesGolden(t *testing.T) {
	r := Replies{ExplorerURL: "https://pharosscan.xyz/", NativeSymbol: "ETH", TokenSymbol: "USDC"}
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")

	cases := []struct {
		name    string
		replies []string
	}{
		{"registered", r.Registered(account)},
		{"native_balance", []string{r.NativeBalance(wallet.Balance{Address: account, Symbol: "ETH", Amount: decimal.RequireFromString("1.5")})}},
		{"token_balance", []string{r.TokenBalance(wallet.Balance{Address: account, Symbol: "USDC", Amount: decimal.RequireFromString("12.25")})}},
		{"minted", []string{r.Minted(decimal.NewFromInt(3), tx)}},
		{"transfer_executed", r.TransferExecuted(tx)},
		{"rejections", []string{r.NotRegistered(), r.AlreadyRegistered(), r.InvalidMint(), r.InvalidTransfer(), r.InvalidAddress("0xabc")}},
		{"failures", []string{r.RegistrationFailed(), r.BalanceFailed("USDC"), r.MintFailed(), r.TransferFailed()}},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g.Assert(t, tc.name, []byte(strings.Join(tc.replies, "\n---\n")))
		})
	}
}

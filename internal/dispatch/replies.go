package dispatch

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/safetext/internal/wallet"
)

const (
	transferUsage = "transfer 5 usdc to 0x123..."
	mintUsage     = "mint 5 usdc"
)

// Replies renders the texts sent back to users. Links point at ExplorerURL.
type Replies struct {
	ExplorerURL  string
	NativeSymbol string
	TokenSymbol  string
}

func (r Replies) explorer(kind, id string) string {
	return strings.TrimRight(r.ExplorerURL, "/") + "/" + kind + "/" + id
}

// Registered confirms a new registration and links the Safe.
func (r Replies) Registered(safe common.Address) []string {
	return []string{
		"You are now registered.",
		r.explorer("address", safe.Hex()),
	}
}

func (r Replies) AlreadyRegistered() string {
	return "You are already registered."
}

func (r Replies) NotRegistered() string {
	return "You don't have a registered wallet. Text 'register' to create one."
}

func (r Replies) RegistrationFailed() string {
	return "Sorry, couldn't create your wallet. Please try again later."
}

func (r Replies) InvalidMint() string {
	return "Invalid mint command. Use: " + mintUsage
}

func (r Replies) InvalidTransfer() string {
	return "Invalid transfer command. Use: " + transferUsage
}

func (r Replies) InvalidAddress(to string) string {
	return fmt.Sprintf("Invalid destination address %s. Use: %s", to, transferUsage)
}

// NativeBalance renders the Safe's native coin balance.
func (r Replies) NativeBalance(b wallet.Balance) string {
	return fmt.Sprintf("Your %s balance:\n%s %s\n\nAddress: %s\nView on explorer: %s",
		b.Symbol, b.Amount.String(), b.Symbol, b.Address.Hex(), r.explorer("address", b.Address.Hex()))
}

// TokenBalance renders the Safe's token balance.
func (r Replies) TokenBalance(b wallet.Balance) string {
	return fmt.Sprintf("Your %s balance:\n%s %s\n\nAddress: %s\nView on explorer: %s/tokens",
		b.Symbol, b.Amount.String(), b.Symbol, b.Address.Hex(), r.explorer("address", b.Address.Hex()))
}

func (r Replies) BalanceFailed(symbol string) string {
	return fmt.Sprintf("Sorry, couldn't retrieve your %s balance. Please try again later.", symbol)
}

func (r Replies) Minted(amount decimal.Decimal, tx common.Hash) string {
	return fmt.Sprintf("✅ Minted %s %s to your address!\nTx Hash: %s\nView on explorer: %s",
		amount.String(), r.TokenSymbol, tx.Hex(), r.explorer("tx", tx.Hex()))
}

func (r Replies) MintFailed() string {
	return fmt.Sprintf("Sorry, couldn't mint %s. Please try again later.", r.TokenSymbol)
}

// TransferExecuted acknowledges a mined transfer, then links the
// transaction in a second message.
func (r Replies) TransferExecuted(tx common.Hash) []string {
	return []string{
		"✅ Transaction executed!",
		fmt.Sprintf("Tx Hash: %s\nView on explorer: %s", tx.Hex(), r.explorer("tx", tx.Hex())),
	}
}

func (r Replies) TransferFailed() string {
	return "Sorry, couldn't execute your transfer. Please try again later."
}

// Package command turns inbound message text into relay commands.
package command

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies a parsed command.
type Kind int

const (
	Unrecognized Kind = iota
	Register
	NativeBalance
	TokenBalance
	Mint
	Transfer
	Invalid
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "register"
	case NativeBalance:
		return "balance"
	case TokenBalance:
		return "token_balance"
	case Mint:
		return "mint"
	case Transfer:
		return "transfer"
	case Invalid:
		return "invalid"
	default:
		return "unrecognized"
	}
}

// ParseError describes a recognized but malformed command.
type ParseError struct {
	Command Kind
	Msg     string
}

func (e *ParseError) Error() string {
	return e.Command.String() + ": " + e.Msg
}

// Command is the result of parsing one message. Amount is in whole token
// units; To is the raw destination token and is not validated here.
type Command struct {
	Kind   Kind
	Amount decimal.Decimal
	To     string
	Err    *ParseError
}

const tokenWord = "usdc"

// MaxAmountDigits bounds the digits accepted in an amount. A uint256 has at
// most 78 decimal digits.
const MaxAmountDigits = 78

// Parse classifies text. It never fails: malformed mint and transfer
// requests come back as Invalid with Err set, and anything else that is
// not a command comes back as Unrecognized.
func Parse(text string) Command {
	normalized := strings.ToLower(strings.TrimSpace(text))
	fields := strings.Fields(normalized)

	switch strings.Join(fields, " ") {
	case "register":
		return Command{Kind: Register}
	case "balance":
		return Command{Kind: NativeBalance}
	case tokenWord + " balance":
		return Command{Kind: TokenBalance}
	case "mint " + tokenWord:
		return Command{Kind: Mint, Amount: decimal.NewFromInt(1)}
	}

	switch {
	case strings.HasPrefix(normalized, "mint") && strings.Contains(normalized, tokenWord):
		return parseMint(fields)
	case strings.HasPrefix(normalized, "transfer") && strings.Contains(normalized, tokenWord) && strings.Contains(normalized, "to"):
		return parseTransfer(fields)
	}
	return Command{Kind: Unrecognized}
}

func parseMint(fields []string) Command {
	amount, ok := amountAfter(fields, "mint")
	if !ok {
		return invalid(Mint, "invalid mint amount")
	}
	return Command{Kind: Mint, Amount: amount}
}

func parseTransfer(fields []string) Command {
	amount, ok := amountAfter(fields, "transfer")
	to := wordAfter(fields, "to")
	if !ok || to == "" {
		return invalid(Transfer, "invalid transfer command")
	}
	return Command{Kind: Transfer, Amount: amount, To: to}
}

// amountAfter parses the token following the first occurrence of word as a
// positive plain decimal literal.
func amountAfter(fields []string, word string) (decimal.Decimal, bool) {
	raw := wordAfter(fields, word)
	if !plainDecimal(raw) {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// plainDecimal reports whether raw is digits with at most one decimal point
// and no more than MaxAmountDigits digits. Exponents are rejected.
func plainDecimal(raw string) bool {
	digits, dots := 0, 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && digits <= MaxAmountDigits && dots <= 1
}

func wordAfter(fields []string, word string) string {
	for i, f := range fields {
		if f == word {
			if i+1 < len(fields) {
				return fields[i+1]
			}
			return ""
		}
	}
	return ""
}

func invalid(kind Kind, msg string) Command {
	return Command{Kind: Invalid, Err: &ParseError{Command: kind, Msg: msg}}
}

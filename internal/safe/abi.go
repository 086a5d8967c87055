package safe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const safeABIJSON = `[
 {"type":"function","name":"setup","stateMutability":"nonpayable","inputs":[
  {"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},
  {"name":"to","type":"address"},{"name":"data","type":"bytes"},
  {"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},
  {"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"outputs":[]},
 {"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
 {"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getTransactionHash","stateMutability":"view","inputs":[
  {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
  {"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
  {"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},
  {"name":"_nonce","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
 {"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
  {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
  {"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
  {"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},
  {"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]}
]`

const proxyFactoryABIJSON = `[
 {"type":"function","name":"createProxyWithNonce","stateMutability":"nonpayable","inputs":[
  {"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],
  "outputs":[{"name":"proxy","type":"address"}]},
 {"type":"event","name":"ProxyCreation","anonymous":false,"inputs":[
  {"name":"proxy","type":"address","indexed":true},{"name":"singleton","type":"address","indexed":false}]}
]`

const tokenABIJSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Parsed contract interfaces.
var (
	SafeABI         = mustParse(safeABIJSON)
	ProxyFactoryABI = mustParse(proxyFactoryABIJSON)
	TokenABI        = mustParse(tokenABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("safe: parse abi: %v", err))
	}
	return parsed
}

// PackSetup encodes the initializer for a 1-of-1 Safe owned by owner with
// no module, fallback handler or payment.
func PackSetup(owner common.Address) []byte {
	zero := common.Address{}
	return mustPack(SafeABI, "setup",
		[]common.Address{owner}, big.NewInt(1), zero, []byte{}, zero, zero, new(big.Int), zero)
}

// PackCreateProxy encodes createProxyWithNonce on the proxy factory.
func PackCreateProxy(singleton common.Address, initializer []byte, saltNonce *big.Int) []byte {
	return mustPack(ProxyFactoryABI, "createProxyWithNonce", singleton, initializer, saltNonce)
}

// PackNonce encodes a nonce() read.
func PackNonce() []byte {
	return mustPack(SafeABI, "nonce")
}

// PackGetOwners encodes a getOwners() read.
func PackGetOwners() []byte {
	return mustPack(SafeABI, "getOwners")
}

// PackGetTransactionHash encodes getTransactionHash for tx.
func PackGetTransactionHash(tx Transaction) []byte {
	tx = tx.normalized()
	return mustPack(SafeABI, "getTransactionHash",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation), tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, tx.Nonce)
}

// PackExecTransaction encodes execTransaction for tx with packed signatures.
func PackExecTransaction(tx Transaction, signatures []byte) []byte {
	tx = tx.normalized()
	return mustPack(SafeABI, "execTransaction",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation), tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, signatures)
}

// PackBalanceOf encodes an ERC-20 balanceOf(account) read.
func PackBalanceOf(account common.Address) []byte {
	return mustPack(TokenABI, "balanceOf", account)
}

// PackDecimals encodes an ERC-20 decimals() read.
func PackDecimals() []byte {
	return mustPack(TokenABI, "decimals")
}

// PackTransfer encodes an ERC-20 transfer(to, amount).
func PackTransfer(to common.Address, amount *big.Int) []byte {
	return mustPack(TokenABI, "transfer", to, amount)
}

// PackMint encodes mint(to, amount) on the test token.
func PackMint(to common.Address, amount *big.Int) []byte {
	return mustPack(TokenABI, "mint", to, amount)
}

// UnpackUint decodes a single uint256 return value of method on contract.
func UnpackUint(contract abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// UnpackDecimals decodes the uint8 returned by decimals().
func UnpackDecimals(out []byte) (uint8, error) {
	values, err := TokenABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unpack decimals: expected 1 value, got %d", len(values))
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected type %T", values[0])
	}
	return d, nil
}

// UnpackHash decodes the bytes32 returned by getTransactionHash.
func UnpackHash(out []byte) (common.Hash, error) {
	values, err := SafeABI.Unpack("getTransactionHash", out)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unpack transaction hash: %w", err)
	}
	if len(values) != 1 {
		return common.Hash{}, fmt.Errorf("unpack transaction hash: expected 1 value, got %d", len(values))
	}
	h, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unpack transaction hash: unexpected type %T", values[0])
	}
	return common.Hash(h), nil
}

// UnpackOwners decodes the address list returned by getOwners.
func UnpackOwners(out []byte) ([]common.Address, error) {
	values, err := SafeABI.Unpack("getOwners", out)
	if err != nil {
		return nil, fmt.Errorf("unpack owners: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack owners: expected 1 value, got %d", len(values))
	}
	owners, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unpack owners: unexpected type %T", values[0])
	}
	return owners, nil
}

// mustPack panics on encoding failure; the argument types above are fixed
// at compile time so a failure is a programming error.
func mustPack(contract abi.ABI, method string, args ...any) []byte {
	data, err := contract.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("safe: pack %s: %v", method, err))
	}
	return data
}

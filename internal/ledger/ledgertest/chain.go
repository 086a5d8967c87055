// Package ledgertest provides an in-memory chain that understands the Safe,
// proxy factory and token calls the relay makes.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/safe"
)

// EstimatedGas is what EstimateGas reports for any known contract.
const EstimatedGas = 250_000

// SentTx records one relayer transaction.
type SentTx struct {
	To   common.Address
	Data []byte
	Gas  uint64
	Hash common.Hash
}

type safeState struct {
	owners []common.Address
	nonce  uint64
}

// Chain is a concurrency-safe simulated ledger.
type Chain struct {
	mu sync.Mutex

	chainID  *big.Int
	relayer  common.Address
	token    common.Address
	decimals uint8
	block    uint64
	counter  uint64

	contracts map[common.Address]string
	safes     map[common.Address]*safeState
	tokenBal  map[common.Address]*big.Int
	native    map[common.Address]*big.Int

	sent     []SentTx
	deployed int

	// Failure injection. A non-nil error is returned by the matching call.
	DeployErr   error
	EstimateErr error
	SendErr     error
	CallErr     error
	// OmitLogs makes proxy creation receipts carry no logs.
	OmitLogs bool
	// HashOverride replaces the value getTransactionHash returns.
	HashOverride *common.Hash
	// OwnersOverride replaces the value getOwners returns.
	OwnersOverride []common.Address
}

var _ ledger.Ledger = (*Chain)(nil)

// New creates a chain with a deployed token contract at token.
func New(token common.Address, decimals uint8) *Chain {
	c := &Chain{
		chainID:   big.NewInt(688688),
		relayer:   common.HexToAddress("0x000000000000000000000000000000000000fEE5"),
		token:     token,
		decimals:  decimals,
		block:     1,
		contracts: map[common.Address]string{token: "token"},
		safes:     map[common.Address]*safeState{},
		tokenBal:  map[common.Address]*big.Int{},
		native:    map[common.Address]*big.Int{},
	}
	return c
}

// SetTokenBalance seeds the token balance of account.
func (c *Chain) SetTokenBalance(account common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenBal[account] = new(big.Int).Set(amount)
}

// SetNativeBalance seeds the native balance of account.
func (c *Chain) SetNativeBalance(account common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[account] = new(big.Int).Set(amount)
}

// TokenBalance returns the token balance of account.
func (c *Chain) TokenBalance(account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceOf(account)
}

// Owners returns the owners of a deployed Safe.
func (c *Chain) Owners(wallet common.Address) []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.safes[wallet]; ok {
		return append([]common.Address(nil), s.owners...)
	}
	return nil
}

// SafeNonce returns the execution nonce of a deployed Safe.
func (c *Chain) SafeNonce(wallet common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.safes[wallet]; ok {
		return s.nonce
	}
	return 0
}

// Sent returns every relayer transaction in submission order.
func (c *Chain) Sent() []SentTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentTx(nil), c.sent...)
}

// Deployments returns the number of Deploy calls that succeeded.
func (c *Chain) Deployments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployed
}

// Relayer returns the simulated relayer address.
func (c *Chain) Relayer() common.Address { return c.relayer }

// ChainID returns the simulated chain id.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BlockNumber returns the current simulated height.
func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

// NativeBalance returns the seeded native balance.
func (c *Chain) NativeBalance(_ context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, &ledger.ChainError{Op: "balance", Err: c.CallErr}
	}
	if b, ok := c.native[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Deploy registers a new contract. Any deployed contract that is not a
// Safe answers createProxyWithNonce.
func (c *Chain) Deploy(_ context.Context, bytecode []byte) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeployErr != nil {
		return common.Address{}, &ledger.ChainError{Op: "deploy", Err: c.DeployErr}
	}
	if len(bytecode) == 0 {
		return common.Address{}, &ledger.ChainError{Op: "deploy", Err: errors.New("empty bytecode")}
	}
	addr := c.nextAddress()
	c.contracts[addr] = "contract"
	c.deployed++
	c.block++
	return addr, nil
}

// EstimateGas succeeds for calls to known contracts.
func (c *Chain) EstimateGas(_ context.Context, to common.Address, _ []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EstimateErr != nil {
		return 0, &ledger.ChainError{Op: "estimate gas", Err: c.EstimateErr}
	}
	if _, ok := c.contracts[to]; !ok {
		return 0, &ledger.ChainError{Op: "estimate gas", Err: fmt.Errorf("no contract at %s", to)}
	}
	return EstimatedGas, nil
}

// Call answers Safe and token reads.
func (c *Chain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, &ledger.ChainError{Op: "call", Err: c.CallErr}
	}
	if len(data) < 4 {
		return nil, &ledger.ChainError{Op: "call", Err: errors.New("missing selector")}
	}

	if to == c.token {
		method, err := safe.TokenABI.MethodById(data[:4])
		if err != nil {
			return nil, &ledger.ChainError{Op: "call", Err: err}
		}
		switch method.Name {
		case "balanceOf":
			args, err := method.Inputs.Unpack(data[4:])
			if err != nil {
				return nil, &ledger.ChainError{Op: "call", Err: err}
			}
			return method.Outputs.Pack(c.balanceOf(args[0].(common.Address)))
		case "decimals":
			return method.Outputs.Pack(c.decimals)
		}
		return nil, &ledger.ChainError{Op: "call", Err: fmt.Errorf("token: %s is not a view", method.Name)}
	}

	state, ok := c.safes[to]
	if !ok {
		return nil, &ledger.ChainError{Op: "call", Err: fmt.Errorf("no safe at %s", to)}
	}
	method, err := safe.SafeABI.MethodById(data[:4])
	if err != nil {
		return nil, &ledger.ChainError{Op: "call", Err: err}
	}
	switch method.Name {
	case "nonce":
		return method.Outputs.Pack(new(big.Int).SetUint64(state.nonce))
	case "getOwners":
		if c.OwnersOverride != nil {
			return method.Outputs.Pack(c.OwnersOverride)
		}
		return method.Outputs.Pack(state.owners)
	case "getThreshold":
		return method.Outputs.Pack(big.NewInt(1))
	case "getTransactionHash":
		if c.HashOverride != nil {
			return method.Outputs.Pack([32]byte(*c.HashOverride))
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, &ledger.ChainError{Op: "call", Err: err}
		}
		tx := transactionFromArgs(args)
		tx.Nonce = args[9].(*big.Int)
		return method.Outputs.Pack([32]byte(safe.TransactionHash(c.chainID, to, tx)))
	}
	return nil, &ledger.ChainError{Op: "call", Err: fmt.Errorf("safe: %s is not a view", method.Name)}
}

// Send executes a relayer transaction and returns its receipt.
func (c *Chain) Send(_ context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, &ledger.ChainError{Op: "send transaction", Err: c.SendErr}
	}
	if len(data) < 4 {
		return nil, &ledger.ChainError{Op: "send transaction", Err: errors.New("missing selector")}
	}

	c.counter++
	hash := crypto.Keccak256Hash(to.Bytes(), data, new(big.Int).SetUint64(c.counter).Bytes())
	c.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     gasLimit / 2,
	}

	var err error
	switch {
	case to == c.token:
		err = c.execToken(c.relayer, data)
	case c.safes[to] != nil:
		err = c.execSafe(to, data)
	case c.contracts[to] != "":
		receipt.Logs, err = c.createProxy(to, data)
	default:
		err = fmt.Errorf("no contract at %s", to)
	}
	if err != nil {
		return nil, &ledger.ChainError{Op: "receipt " + hash.Hex(), Err: errors.Join(ledger.ErrReverted, err)}
	}

	c.sent = append(c.sent, SentTx{To: to, Data: append([]byte(nil), data...), Gas: gasLimit, Hash: hash})
	return receipt, nil
}

func (c *Chain) createProxy(factory common.Address, data []byte) ([]*types.Log, error) {
	method, err := safe.ProxyFactoryABI.MethodById(data[:4])
	if err != nil || method.Name != "createProxyWithNonce" {
		return nil, fmt.Errorf("factory: unsupported call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	singleton := args[0].(common.Address)
	if _, ok := c.contracts[singleton]; !ok {
		return nil, fmt.Errorf("factory: singleton %s not deployed", singleton)
	}

	initializer := args[1].([]byte)
	if len(initializer) < 4 {
		return nil, fmt.Errorf("factory: empty initializer")
	}
	setup, err := safe.SafeABI.MethodById(initializer[:4])
	if err != nil || setup.Name != "setup" {
		return nil, fmt.Errorf("factory: initializer is not setup")
	}
	setupArgs, err := setup.Inputs.Unpack(initializer[4:])
	if err != nil {
		return nil, err
	}
	owners := setupArgs[0].([]common.Address)
	if threshold := setupArgs[1].(*big.Int); threshold.Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("setup: unsupported threshold %s", threshold)
	}

	proxy := c.nextAddress()
	c.contracts[proxy] = "safe"
	c.safes[proxy] = &safeState{owners: owners}

	if c.OmitLogs {
		return nil, nil
	}
	event := safe.ProxyFactoryABI.Events["ProxyCreation"]
	return []*types.Log{
		{Address: proxy, Topics: []common.Hash{crypto.Keccak256Hash([]byte("SafeSetup(address,address[],uint256,address,address)"))}},
		{Address: factory, Topics: []common.Hash{event.ID, common.BytesToHash(proxy.Bytes())}},
	}, nil
}

func (c *Chain) execSafe(wallet common.Address, data []byte) error {
	method, err := safe.SafeABI.MethodById(data[:4])
	if err != nil || method.Name != "execTransaction" {
		return fmt.Errorf("safe: unsupported call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}
	state := c.safes[wallet]
	tx := transactionFromArgs(args)
	tx.Nonce = new(big.Int).SetUint64(state.nonce)

	signer, err := safe.RecoverSigner(safe.TransactionHash(c.chainID, wallet, tx), args[9].([]byte))
	if err != nil {
		return fmt.Errorf("GS026: %w", err)
	}
	if len(state.owners) == 0 || signer != state.owners[0] {
		return fmt.Errorf("GS026: signer %s is not an owner", signer)
	}

	if tx.To == c.token {
		if err := c.execToken(wallet, tx.Data); err != nil {
			return fmt.Errorf("GS013: %w", err)
		}
	}
	state.nonce++
	return nil
}

func (c *Chain) execToken(from common.Address, data []byte) error {
	if len(data) < 4 {
		return errors.New("token: missing selector")
	}
	method, err := safe.TokenABI.MethodById(data[:4])
	if err != nil {
		return err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}
	to := args[0].(common.Address)
	amount := args[1].(*big.Int)

	switch method.Name {
	case "mint":
		c.tokenBal[to] = new(big.Int).Add(c.balanceOf(to), amount)
		return nil
	case "transfer":
		bal := c.balanceOf(from)
		if bal.Cmp(amount) < 0 {
			return errors.New("ERC20: transfer amount exceeds balance")
		}
		c.tokenBal[from] = new(big.Int).Sub(bal, amount)
		c.tokenBal[to] = new(big.Int).Add(c.balanceOf(to), amount)
		return nil
	}
	return fmt.Errorf("token: unsupported call %s", method.Name)
}

func (c *Chain) balanceOf(account common.Address) *big.Int {
	if b, ok := c.tokenBal[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *Chain) nextAddress() common.Address {
	c.counter++
	return crypto.CreateAddress(c.relayer, c.counter)
}

func transactionFromArgs(args []any) safe.Transaction {
	return safe.Transaction{
		To:             args[0].(common.Address),
		Value:          args[1].(*big.Int),
		Data:           args[2].([]byte),
		Operation:      safe.Operation(args[3].(uint8)),
		SafeTxGas:      args[4].(*big.Int),
		BaseGas:        args[5].(*big.Int),
		GasPrice:       args[6].(*big.Int),
		GasToken:       args[7].(common.Address),
		RefundReceiver: args[8].(common.Address),
	}
}

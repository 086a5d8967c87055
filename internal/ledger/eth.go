package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/congo-pay/safetext/internal/logging"
)

const deployGasBuffer = 50_000

// rpcAPI is the subset of *ethclient.Client the ledger uses, kept narrow so
// tests can substitute a fake endpoint.
type rpcAPI interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Ledger = (*EthLedger)(nil)

// Options tunes an EthLedger.
type Options struct {
	// ExpectedChainID, when non-zero, must match the endpoint's chain id.
	ExpectedChainID     int64
	ReceiptPollInterval time.Duration
	// CallTimeout bounds each RPC request. Waiting for a receipt is
	// bounded only by the caller's context.
	CallTimeout time.Duration
}

// EthLedger implements Ledger over JSON-RPC with a local relayer key.
type EthLedger struct {
	api          rpcAPI
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	pollInterval time.Duration
	callTimeout  time.Duration
	logger       *slog.Logger

	// sendMu serializes nonce allocation for the relayer account.
	sendMu sync.Mutex
	closer func()
}

// Dial connects to rawURL and binds the relayer key.
func Dial(ctx context.Context, rawURL, relayerKeyHex string, opts Options, logger *slog.Logger) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	l, err := NewWithAPI(ctx, client, relayerKeyHex, opts, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	l.closer = client.Close
	return l, nil
}

// NewWithAPI allows injecting a mockable RPC API (used in tests).
func NewWithAPI(ctx context.Context, api rpcAPI, relayerKeyHex string, opts Options, logger *slog.Logger) (*EthLedger, error) {
	key, err := ParsePrivateKey(relayerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("relayer key: %w", err)
	}

	idCtx, cancel := boundCtx(ctx, opts.CallTimeout)
	chainID, err := api.ChainID(idCtx)
	cancel()
	if err != nil {
		return nil, chainErr("chain id", err)
	}
	if opts.ExpectedChainID != 0 && chainID.Cmp(big.NewInt(opts.ExpectedChainID)) != 0 {
		return nil, fmt.Errorf("rpc chain id %s does not match configured %d", chainID, opts.ExpectedChainID)
	}

	if logger == nil {
		logger = logging.Discard()
	}

	interval := opts.ReceiptPollInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &EthLedger{
		api:          api,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		pollInterval: interval,
		callTimeout:  opts.CallTimeout,
		logger:       logger,
	}, nil
}

func boundCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// rpcCtx derives the context for one RPC request.
func (l *EthLedger) rpcCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundCtx(ctx, l.callTimeout)
}

// ParsePrivateKey accepts a hex private key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

// Close releases the underlying RPC connection.
func (l *EthLedger) Close() {
	if l.closer != nil {
		l.closer()
	}
}

// Relayer returns the fee-paying account address.
func (l *EthLedger) Relayer() common.Address {
	return l.from
}

// ChainID returns the chain id observed at construction.
func (l *EthLedger) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// BlockNumber returns the latest block number.
func (l *EthLedger) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := l.rpcCtx(ctx)
	defer cancel()
	n, err := l.api.BlockNumber(ctx)
	if err != nil {
		return 0, chainErr("block number", err)
	}
	return n, nil
}

// NativeBalance returns the latest native balance of account in wei.
func (l *EthLedger) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := l.rpcCtx(ctx)
	defer cancel()
	bal, err := l.api.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, chainErr("balance", err)
	}
	return bal, nil
}

// Call executes a read-only contract call against the latest block.
func (l *EthLedger) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := l.rpcCtx(ctx)
	defer cancel()
	out, err := l.api.CallContract(ctx, ethereum.CallMsg{From: l.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, chainErr("call", err)
	}
	return out, nil
}

// EstimateGas estimates a call made from the relayer account.
func (l *EthLedger) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	ctx, cancel := l.rpcCtx(ctx)
	defer cancel()
	gas, err := l.api.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &to, Data: data})
	if err != nil {
		return 0, chainErr("estimate gas", err)
	}
	return gas, nil
}

// Deploy creates a contract from bytecode and waits for its receipt.
func (l *EthLedger) Deploy(ctx context.Context, bytecode []byte) (common.Address, error) {
	estCtx, cancel := l.rpcCtx(ctx)
	gas, err := l.api.EstimateGas(estCtx, ethereum.CallMsg{From: l.from, Data: bytecode})
	cancel()
	if err != nil {
		return common.Address{}, chainErr("estimate deploy", err)
	}

	receipt, err := l.submit(ctx, nil, bytecode, gas+deployGasBuffer)
	if err != nil {
		return common.Address{}, err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, chainErr("deploy", errors.New("receipt has no contract address"))
	}
	return receipt.ContractAddress, nil
}

// Send submits a call from the relayer and waits for a successful receipt.
func (l *EthLedger) Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	return l.submit(ctx, &to, data, gasLimit)
}

func (l *EthLedger) submit(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	tx, err := l.signAndSend(ctx, to, data, gasLimit)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("transaction submitted", "tx", tx.Hash().Hex(), "nonce", tx.Nonce(), "gas", gasLimit)

	receipt, err := l.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, chainErr("wait receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, chainErr("receipt "+tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

func (l *EthLedger) signAndSend(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	rpcCtx, cancel := l.rpcCtx(ctx)
	defer cancel()

	nonce, err := l.api.PendingNonceAt(rpcCtx, l.from)
	if err != nil {
		return nil, chainErr("nonce", err)
	}
	gasPrice, err := l.api.SuggestGasPrice(rpcCtx)
	if err != nil {
		return nil, chainErr("gas price", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := l.api.SendTransaction(rpcCtx, signed); err != nil {
		return nil, chainErr("send transaction", err)
	}
	return signed, nil
}

func (l *EthLedger) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		pollCtx, cancel := l.rpcCtx(ctx)
		receipt, err := l.api.TransactionReceipt(pollCtx, hash)
		cancel()
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			l.logger.Warn("receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrChain is matched by every error that originates from the chain
	// endpoint (RPC failure, estimation failure, reverted transaction).
	ErrChain = errors.New("chain error")

	// ErrReverted indicates a transaction was mined with a failed status.
	ErrReverted = errors.New("transaction reverted")
)

// ChainError wraps a failed ledger operation.
type ChainError struct {
	Op  string
	Err error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ChainError) Unwrap() []error {
	return []error{ErrChain, e.Err}
}

func chainErr(op string, err error) error {
	return &ChainError{Op: op, Err: err}
}

// Ledger defines the read and write operations the relay performs against
// one EVM endpoint. Writes are paid for and signed by the relayer account
// and return once the transaction is mined.
type Ledger interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	Deploy(ctx context.Context, bytecode []byte) (common.Address, error)
	Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error)
	Relayer() common.Address
}

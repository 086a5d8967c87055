package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the Safe call type.
type Operation uint8

// Call is the only operation the relay signs.
const Call Operation = 0

// Transaction is the Safe transaction descriptor that owners sign.
type Transaction struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// NewCall builds a plain call with no value, no refund and zero gas
// parameters, which is what the relayer submits.
func NewCall(to common.Address, data []byte, nonce *big.Int) Transaction {
	return Transaction{
		To:        to,
		Value:     new(big.Int),
		Data:      data,
		Operation: Call,
		SafeTxGas: new(big.Int),
		BaseGas:   new(big.Int),
		GasPrice:  new(big.Int),
		Nonce:     nonce,
	}.normalized()
}

// normalized replaces nil numeric fields with zero.
func (tx Transaction) normalized() Transaction {
	zero := func(v *big.Int) *big.Int {
		if v == nil {
			return new(big.Int)
		}
		return v
	}
	tx.Value = zero(tx.Value)
	tx.SafeTxGas = zero(tx.SafeTxGas)
	tx.BaseGas = zero(tx.BaseGas)
	tx.GasPrice = zero(tx.GasPrice)
	tx.Nonce = zero(tx.Nonce)
	if tx.Data == nil {
		tx.Data = []byte{}
	}
	return tx
}

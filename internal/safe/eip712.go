package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash = crypto.Keccak256Hash([]byte(
		"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas," +
			"uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// DomainSeparator returns the EIP-712 domain separator of a Safe.
func DomainSeparator(chainID *big.Int, safe common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		word(chainID),
		addressWord(safe),
	)
}

// TransactionHash computes the hash the Safe's getTransactionHash returns
// for tx, so a contract-provided hash can be cross-checked locally.
func TransactionHash(chainID *big.Int, safe common.Address, tx Transaction) common.Hash {
	tx = tx.normalized()
	structHash := crypto.Keccak256Hash(
		safeTxTypeHash.Bytes(),
		addressWord(tx.To),
		word(tx.Value),
		crypto.Keccak256(tx.Data),
		word(new(big.Int).SetUint64(uint64(tx.Operation))),
		word(tx.SafeTxGas),
		word(tx.BaseGas),
		word(tx.GasPrice),
		addressWord(tx.GasToken),
		addressWord(tx.RefundReceiver),
		word(tx.Nonce),
	)
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		DomainSeparator(chainID, safe).Bytes(),
		structHash.Bytes(),
	)
}

func word(v *big.Int) []byte {
	return math.U256Bytes(new(big.Int).Set(v))
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

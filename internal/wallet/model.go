package wallet

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Contract kinds shared by every Safe the relay deploys.
const (
	KindSingleton    = "safe_singleton"
	KindProxyFactory = "safe_proxy_factory"
)

// Balance is an account balance in whole units of Symbol.
type Balance struct {
	Address common.Address
	Symbol  string
	Amount  decimal.Decimal
	Raw     *big.Int
	AsOf    time.Time
}

// Provisioned describes a freshly deployed Safe.
type Provisioned struct {
	Address   common.Address
	Singleton common.Address
	Factory   common.Address
	TxHash    common.Hash
}

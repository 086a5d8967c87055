package funding

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/safe"
)

// mintGasBuffer is added on top of the estimate for mint calls.
const mintGasBuffer = 50_000

// Minter issues new token units to an account.
type Minter interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error)
}

// RelayerMinter calls mint(address,uint256) on the token from the relayer
// account, which must be allowed to mint.
type RelayerMinter struct {
	ledger ledger.Ledger
	token  common.Address
}

// NewRelayerMinter builds a minter for token.
func NewRelayerMinter(l ledger.Ledger, token common.Address) *RelayerMinter {
	return &RelayerMinter{ledger: l, token: token}
}

// Mint submits the mint call and waits for it to be mined.
func (m *RelayerMinter) Mint(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error) {
	data := safe.PackMint(to, amount)
	gas, err := m.ledger.EstimateGas(ctx, m.token, data)
	if err != nil {
		return nil, err
	}
	return m.ledger.Send(ctx, m.token, data, gas+mintGasBuffer)
}

package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/safe"
)

const proxyGasBuffer = 50_000

// ErrNoProxyLog is returned when the proxy creation receipt has no logs to
// read the new Safe address from.
var ErrNoProxyLog = errors.New("proxy creation emitted no logs")

// ErrOwnerMismatch is returned when a freshly created Safe does not list
// exactly the requested owner.
var ErrOwnerMismatch = errors.New("safe owners do not match")

// CodeSource returns creation bytecode for a contract.
type CodeSource func() ([]byte, error)

// ArtifactCode loads creation bytecode from a compiled artifact on disk.
func ArtifactCode(path string) CodeSource {
	return func() ([]byte, error) {
		art, err := safe.LoadArtifact(path)
		if err != nil {
			return nil, err
		}
		return art.Code()
	}
}

// ProvisionerConfig selects how the shared Safe contracts are obtained.
type ProvisionerConfig struct {
	// Singleton and Factory, when set, are used as-is and never deployed.
	Singleton common.Address
	Factory   common.Address

	SingletonCode CodeSource
	FactoryCode   CodeSource

	// Reuse records the first deployment of each shared contract and uses
	// it for later provisions instead of deploying fresh copies.
	Reuse bool
}

// Provisioner deploys 1-of-1 Safes through the proxy factory.
type Provisioner struct {
	ledger ledger.Ledger
	repo   Repository
	cfg    ProvisionerConfig
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewProvisioner builds a provisioner. repo may be nil when Reuse is off.
func NewProvisioner(l ledger.Ledger, repo Repository, cfg ProvisionerConfig, logger *slog.Logger) *Provisioner {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Provisioner{ledger: l, repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// Provision deploys a Safe with owner as its only owner and threshold 1.
func (p *Provisioner) Provision(ctx context.Context, owner common.Address) (Provisioned, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	singleton, err := p.contract(ctx, KindSingleton, p.cfg.Singleton, p.cfg.SingletonCode)
	if err != nil {
		return Provisioned{}, fmt.Errorf("safe singleton: %w", err)
	}
	factory, err := p.contract(ctx, KindProxyFactory, p.cfg.Factory, p.cfg.FactoryCode)
	if err != nil {
		return Provisioned{}, fmt.Errorf("proxy factory: %w", err)
	}

	saltNonce := big.NewInt(p.now().UnixMilli())
	data := safe.PackCreateProxy(singleton, safe.PackSetup(owner), saltNonce)

	gas, err := p.ledger.EstimateGas(ctx, factory, data)
	if err != nil {
		return Provisioned{}, err
	}
	receipt, err := p.ledger.Send(ctx, factory, data, gas+proxyGasBuffer)
	if err != nil {
		return Provisioned{}, err
	}
	if len(receipt.Logs) == 0 {
		return Provisioned{}, ErrNoProxyLog
	}

	address := receipt.Logs[0].Address
	if err := p.checkOwners(ctx, address, owner); err != nil {
		return Provisioned{}, err
	}

	out := Provisioned{
		Address:   address,
		Singleton: singleton,
		Factory:   factory,
		TxHash:    receipt.TxHash,
	}
	p.logger.Info("safe deployed", "safe", out.Address.Hex(), "owner", owner.Hex(), "tx", out.TxHash.Hex())
	return out, nil
}

// checkOwners reads getOwners on the new Safe and requires [owner].
func (p *Provisioner) checkOwners(ctx context.Context, address, owner common.Address) error {
	out, err := p.ledger.Call(ctx, address, safe.PackGetOwners())
	if err != nil {
		return err
	}
	owners, err := safe.UnpackOwners(out)
	if err != nil {
		return &ledger.ChainError{Op: "getOwners", Err: err}
	}
	if len(owners) != 1 || owners[0] != owner {
		return fmt.Errorf("%w: safe %s has owners %v", ErrOwnerMismatch, address.Hex(), owners)
	}
	return nil
}

func (p *Provisioner) contract(ctx context.Context, kind string, preset common.Address, code CodeSource) (common.Address, error) {
	if preset != (common.Address{}) {
		return preset, nil
	}

	if p.cfg.Reuse {
		addr, err := p.repo.Get(ctx, kind)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, ErrNoDeployment) {
			return common.Address{}, err
		}
	}

	if code == nil {
		return common.Address{}, errors.New("no address configured and no bytecode source")
	}
	bytecode, err := code()
	if err != nil {
		return common.Address{}, err
	}
	addr, err := p.ledger.Deploy(ctx, bytecode)
	if err != nil {
		return common.Address{}, err
	}
	p.logger.Info("contract deployed", "kind", kind, "address", addr.Hex())

	if p.cfg.Reuse {
		if err := p.repo.Save(ctx, kind, addr); err != nil {
			p.logger.Warn("record deployment failed", "kind", kind, "error", err)
		}
	}
	return addr, nil
}

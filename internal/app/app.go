// Package app wires the relay's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/safetext/internal/auth"
	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/dedupe"
	"github.com/congo-pay/safetext/internal/dispatch"
	"github.com/congo-pay/safetext/internal/funding"
	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/infra"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/messages"
	"github.com/congo-pay/safetext/internal/metrics"
	"github.com/congo-pay/safetext/internal/notification"
	"github.com/congo-pay/safetext/internal/payments"
	"github.com/congo-pay/safetext/internal/poller"
	"github.com/congo-pay/safetext/internal/routes"
	"github.com/congo-pay/safetext/internal/server"
	"github.com/congo-pay/safetext/internal/vault"
	"github.com/congo-pay/safetext/internal/wallet"
)

const dedupePrefix = "safetext:"

// Stores holds the optional Postgres and Redis connections.
type Stores struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Close releases whichever connections are open.
func (s Stores) Close() {
	if s.Cache != nil {
		_ = s.Cache.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// OpenStores connects to Postgres and Redis when they are configured.
func OpenStores(ctx context.Context, cfg config.Config) (Stores, error) {
	var s Stores
	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, err
		}
		s.DB = db
	}
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return Stores{}, err
		}
		s.Cache = cache
	}
	return s, nil
}

// Users returns the user repository backing the directory.
func (s Stores) Users() identity.Repository {
	if s.DB != nil {
		return identity.NewPostgresRepository(s.DB)
	}
	return identity.NewMemoryRepository()
}

// Journal returns the relay transaction journal.
func (s Stores) Journal() ledger.Journal {
	if s.DB != nil {
		return ledger.NewPostgresJournal(s.DB)
	}
	return ledger.NewMemoryJournal()
}

// Deployments returns the shared contract deployment repository.
func (s Stores) Deployments() wallet.Repository {
	if s.DB != nil {
		return wallet.NewPostgresRepository(s.DB)
	}
	return wallet.NewMemoryRepository()
}

// Claims returns the dedupe store used for message ids and idempotency keys.
func (s Stores) Claims() dedupe.Store {
	if s.Cache != nil {
		return dedupe.NewRedisStore(s.Cache, dedupePrefix)
	}
	return dedupe.NewMemoryStore()
}

// App is the fully wired relay.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Stores  Stores

	Chain      *ledger.EthLedger
	MessageLog *messages.Reader
	Directory  *identity.Service
	Dispatcher *dispatch.Dispatcher
	Poller     *poller.Poller
	Server     *server.Server
}

// Build connects to every dependency and assembles the services. Callers
// must Close the result.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New("safetext")}

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	if stores.DB != nil {
		if err := infra.Migrate(ctx, stores.DB); err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	sealer, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Chain.CallTimeout)
	defer cancel()
	chain, err := ledger.Dial(dialCtx, cfg.Chain.RPCURL, cfg.Chain.RelayerKey, ledger.Options{
		ExpectedChainID:     cfg.Chain.ChainID,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
		CallTimeout:         cfg.Chain.CallTimeout,
	}, logging.Component(a.Logger, "ledger"))
	if err != nil {
		return err
	}
	a.Chain = chain

	log, err := messages.Open(cfg.Messages.DBPath)
	if err != nil {
		return err
	}
	a.MessageLog = log

	notifier, err := buildNotifier(cfg, a.Stores.Cache, a.Logger)
	if err != nil {
		return err
	}

	token := wallet.Token{Address: cfg.TokenAddress(), Symbol: cfg.Token.Symbol, Decimals: cfg.Token.Decimals}
	journal := a.Stores.Journal()
	claims := a.Stores.Claims()

	provCfg := wallet.ProvisionerConfig{
		SingletonCode: wallet.ArtifactCode(cfg.Safe.ArtifactPath),
		FactoryCode:   wallet.ArtifactCode(cfg.Safe.ProxyFactoryArtifactPath),
		Reuse:         cfg.Safe.ReuseDeployments,
	}
	if addr, ok := cfg.Safe.Singleton(); ok {
		provCfg.Singleton = addr
	}
	if addr, ok := cfg.Safe.Factory(); ok {
		provCfg.Factory = addr
	}
	provisioner := wallet.NewProvisioner(chain, a.Stores.Deployments(), provCfg, logging.Component(a.Logger, "provisioner"))

	a.Directory = identity.NewService(a.Stores.Users(), sealer, provisioner, journal, chain.Relayer(), logging.Component(a.Logger, "identity"))
	wallets := wallet.NewService(chain, token, cfg.Chain.NativeSymbol)
	if err := wallets.CheckToken(ctx); err != nil {
		return fmt.Errorf("token %s: %w", token.Address.Hex(), err)
	}
	minter := funding.NewService(funding.NewRelayerMinter(chain, token.Address), a.Directory, token, journal, logging.Component(a.Logger, "funding"))
	transfers := payments.NewService(chain, a.Directory, token, journal, payments.Options{VerifyHash: cfg.Safe.VerifyTxHash}, logging.Component(a.Logger, "payments"))

	a.Dispatcher = dispatch.New(dispatch.Deps{
		Directory:   a.Directory,
		Balances:    wallets,
		Minter:      minter,
		Transferrer: transfers,
		Notifier:    notifier,
		Claims:      claims,
	}, dispatch.Replies{
		ExplorerURL:  cfg.Chain.ExplorerURL,
		NativeSymbol: cfg.Chain.NativeSymbol,
		TokenSymbol:  cfg.Token.Symbol,
	}, dispatch.Options{
		Timeout:  cfg.Poller.DispatchTimeout,
		ClaimTTL: cfg.IdempotencyTTL,
	}, logging.Component(a.Logger, "dispatch"), a.Metrics)

	a.Poller = poller.New(log, a.Dispatcher, poller.Options{
		Interval:  cfg.Poller.Interval,
		BatchSize: cfg.Poller.BatchSize,
	}, logging.Component(a.Logger, "poller"), a.Metrics)

	var issuer *auth.Issuer
	if cfg.JWTSecret != "" {
		if issuer, err = auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL); err != nil {
			return err
		}
	}

	srv, err := server.New(cfg, routes.Deps{
		DB:          a.Stores.DB,
		Cache:       a.Stores.Cache,
		Logger:      logging.Component(a.Logger, "http"),
		Metrics:     a.Metrics,
		Issuer:      issuer,
		Idempotency: claims,
		Chain:       chain,
		MessageLog:  log,
		Messages:    messages.NewHandler(log, notifier),
		Users:       identity.NewHandler(a.Directory),
		Wallets:     wallet.NewHandler(wallets, chain),
	})
	if err != nil {
		return err
	}
	a.Server = srv
	return nil
}

func buildNotifier(cfg config.Config, cache *redis.Client, logger *slog.Logger) (notification.Notifier, error) {
	switch cfg.Notifier.Kind {
	case config.NotifierAppleScript:
		return notification.NewAppleScriptNotifier(cfg.Notifier.ScriptDir), nil
	case config.NotifierRedis:
		if cache == nil {
			return nil, errors.New("redis notifier requires REDIS_URL")
		}
		return notification.NewQueueNotifier(cache, cfg.Notifier.Queue), nil
	default:
		return notification.NewLoggerNotifier(logging.Component(logger, "notifier")), nil
	}
}

// Run starts the poller and the HTTP server and blocks until ctx is
// cancelled or the server fails, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = a.Poller.Run(pollCtx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- a.Server.Listen()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	stopPoller()
	<-pollDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownPeriod)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}

// Close releases every connection opened by Build.
func (a *App) Close() {
	if a.MessageLog != nil {
		if err := a.MessageLog.Close(); err != nil {
			a.Logger.Warn("close message log", "error", err)
		}
	}
	if a.Chain != nil {
		a.Chain.Close()
	}
	a.Stores.Close()
}

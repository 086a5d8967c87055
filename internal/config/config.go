package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures application runtime configuration loaded from environment variables.
// It is built once at startup and passed explicitly to every component.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"safetext"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"3000"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	EncryptionKey  string        `env:"ENCRYPTION_KEY"`
	JWTSecret      string        `env:"API_JWT_SECRET"`
	JWTTTL         time.Duration `env:"API_TOKEN_TTL" envDefault:"24h"`
	SendRateLimit  int           `env:"SEND_RATE_LIMIT" envDefault:"5"`

	Messages Messages `envPrefix:"MESSAGES_"`
	Poller   Poller   `envPrefix:"POLL_"`
	Chain    Chain
	Token    Token    `envPrefix:"TOKEN_"`
	Safe     Safe     `envPrefix:"SAFE_"`
	Notifier Notifier `envPrefix:"NOTIFIER_"`
}

// Messages locates the external message log.
type Messages struct {
	DBPath string `env:"DB_PATH,expand" envDefault:"${HOME}/Library/Messages/chat.db"`
}

// Poller contains the polling loop parameters.
type Poller struct {
	Interval        time.Duration `env:"INTERVAL" envDefault:"1s"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"100"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"3m"`
}

// Chain contains RPC endpoint and relayer account parameters.
type Chain struct {
	RPCURL              string        `env:"RPC_URL" envDefault:"https://eth.llamarpc.com"`
	ChainID             int64         `env:"CHAIN_ID" envDefault:"0"`
	RelayerKey          string        `env:"RELAYER_PRIVATE_KEY"`
	ReceiptPollInterval time.Duration `env:"RECEIPT_POLL_INTERVAL" envDefault:"1s"`
	CallTimeout         time.Duration `env:"RPC_CALL_TIMEOUT" envDefault:"30s"`
	ExplorerURL         string        `env:"EXPLORER_URL" envDefault:"https://pharosscan.xyz"`
	NativeSymbol        string        `env:"NATIVE_SYMBOL" envDefault:"ETH"`
}

// Token describes the fixed ERC-20 token the relay mints and transfers.
type Token struct {
	Address  string `env:"ADDRESS" envDefault:"0xa3B2a0D85A9A4e4d19880ccB9622b1cA4f3C6690"`
	Symbol   string `env:"SYMBOL" envDefault:"USDC"`
	Decimals int32  `env:"DECIMALS" envDefault:"18"`
}

// Safe contains wallet contract deployment parameters.
type Safe struct {
	ArtifactPath             string `env:"ARTIFACT_PATH" envDefault:"artifacts/Safe.json"`
	ProxyFactoryArtifactPath string `env:"PROXY_FACTORY_ARTIFACT_PATH" envDefault:"artifacts/SafeProxyFactory.json"`
	SingletonAddress         string `env:"SINGLETON_ADDRESS"`
	ProxyFactoryAddress      string `env:"PROXY_FACTORY_ADDRESS"`
	ReuseDeployments         bool   `env:"REUSE_DEPLOYMENTS" envDefault:"false"`
	VerifyTxHash             bool   `env:"VERIFY_TX_HASH" envDefault:"true"`
}

// Notifier selects the outbound delivery channel.
type Notifier struct {
	Kind      string `env:"KIND" envDefault:"log"`
	Queue     string `env:"QUEUE" envDefault:"outbound:v1"`
	ScriptDir string `env:"SCRIPT_DIR,expand" envDefault:"${HOME}/.safetext"`
}

// Notifier kinds.
const (
	NotifierLog         = "log"
	NotifierAppleScript = "applescript"
	NotifierRedis       = "redis"
)

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads the environment without validating it, for commands that
// only need part of the configuration.
func Parse() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Notifier.Kind = strings.ToLower(cfg.Notifier.Kind)
	return cfg, nil
}

// Validate checks the values that cannot be defaulted. Missing secrets are
// startup failures.
func (c Config) Validate() error {
	var errs []error

	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY must be set"))
	}
	if c.Chain.RelayerKey == "" {
		errs = append(errs, errors.New("RELAYER_PRIVATE_KEY must be set"))
	}
	if !common.IsHexAddress(c.Token.Address) {
		errs = append(errs, fmt.Errorf("invalid TOKEN_ADDRESS %q", c.Token.Address))
	}
	if c.Token.Decimals < 0 || c.Token.Decimals > 36 {
		errs = append(errs, fmt.Errorf("invalid TOKEN_DECIMALS %d", c.Token.Decimals))
	}
	for name, v := range map[string]string{
		"SAFE_SINGLETON_ADDRESS":     c.Safe.SingletonAddress,
		"SAFE_PROXY_FACTORY_ADDRESS": c.Safe.ProxyFactoryAddress,
	} {
		if v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("invalid %s %q", name, v))
		}
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL %s", c.Poller.Interval))
	}
	if c.Poller.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_BATCH_SIZE %d", c.Poller.BatchSize))
	}
	switch c.Notifier.Kind {
	case NotifierLog, NotifierAppleScript:
	case NotifierRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set for the redis notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFIER_KIND %q", c.Notifier.Kind))
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv))
		}
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("API_JWT_SECRET must be set when APP_ENV=%s", c.AppEnv))
		}
	}

	return errors.Join(errs...)
}

// IsDev reports whether the process runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// TokenAddress returns the configured token contract address.
func (c Config) TokenAddress() common.Address {
	return common.HexToAddress(c.Token.Address)
}

// Singleton returns the pre-deployed Safe implementation, if any.
func (c Safe) Singleton() (common.Address, bool) {
	return optionalAddress(c.SingletonAddress)
}

// Factory returns the pre-deployed proxy factory, if any.
func (c Safe) Factory() (common.Address, bool) {
	return optionalAddress(c.ProxyFactoryAddress)
}

func optionalAddress(v string) (common.Address, bool) {
	if v == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

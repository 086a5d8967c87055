package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/safetext/internal/auth"
	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/dedupe"
	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/ledger/ledgertest"
	"github.com/congo-pay/safetext/internal/messages"
	"github.com/congo-pay/safetext/internal/metrics"
	"github.com/congo-pay/safetext/internal/notification"
	"github.com/congo-pay/safetext/internal/vault"
	"github.com/congo-pay/safetext/internal/wallet"
)

type staticLog struct{ err error }

func (s staticLog) Recent(context.Context, int, int) ([]messages.Message, error) { return nil, s.err }
func (s staticLog) ByPhone(context.Context, string) ([]messages.Message, error)  { return nil, s.err }
func (s staticLog) Ping(context.Context) error                                   { return s.err }

type testEnv struct {
	app       *fiber.App
	token     string
	directory *identity.Service
}

func newEnv(t *testing.T, logErr error) testEnv {
	t.Helper()
	tokenAddr := common.HexToAddress("0xa3B2a4b2E6fA1a0Cf2bA3a1c0B0d5A1d9C8e6690")
	chain := ledgertest.New(tokenAddr, 18)
	v, err := vault.New("routes-secret")
	require.NoError(t, err)
	code := func() ([]byte, error) { return []byte{0x60}, nil }
	prov := wallet.NewProvisioner(chain, nil, wallet.ProvisionerConfig{SingletonCode: code, FactoryCode: code}, nil)
	directory := identity.NewService(identity.NewMemoryRepository(), v, prov, ledger.NewMemoryJournal(), chain.Relayer(), nil)
	wallets := wallet.NewService(chain, wallet.Token{Address: tokenAddr, Symbol: "USDC", Decimals: 18}, "ETH")

	issuer, err := auth.NewIssuer("operator-secret", time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.Issue("ops")
	require.NoError(t, err)

	log := staticLog{err: logErr}
	app := fiber.New()
	require.NoError(t, Setup(app, Deps{
		Cfg:         config.Config{AppEnv: "test", IdempotencyTTL: time.Minute},
		Metrics:     metrics.New("test"),
		Issuer:      issuer,
		Idempotency: dedupe.NewMemoryStore(),
		Chain:       chain,
		MessageLog:  log,
		Messages:    messages.NewHandler(log, notification.NewLoggerNotifier(nil)),
		Users:       identity.NewHandler(directory),
		Wallets:     wallet.NewHandler(wallets, chain),
	}))
	return testEnv{app: app, token: token, directory: directory}
}

func (e testEnv) get(t *testing.T, path string, authed bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if authed {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+e.token)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.get(t, "/healthz", false)
	assert.Equal(t, fiber.StatusOK, status)
	checks := body["status"].(map[string]any)
	assert.Equal(t, "ok", checks["rpc"])
	assert.Equal(t, "ok", checks["message_log"])
}

func TestHealthzReportsUnavailableLog(t *testing.T) {
	env := newEnv(t, errors.New("no chat.db"))
	status, body := env.get(t, "/healthz", false)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "no chat.db", body["status"].(map[string]any)["message_log"])
}

func TestPingIsPublic(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.get(t, "/api/v1/ping", false)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["request_id"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.get(t, "/api/v1/chain/block-number", false)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := env.get(t, "/api/v1/chain/block-number", true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "block_number")
}

func TestUserLookup(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.get(t, "/api/v1/users/+15550009999", true)
	assert.Equal(t, fiber.StatusNotFound, status)

	reg, err := env.directory.RegisterIfNeeded(context.Background(), "+15550009999")
	require.NoError(t, err)

	status, body := env.get(t, "/api/v1/users/+15550009999", true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, reg.User.WalletAddress.Hex(), body["safe_address"])
	for key := range body {
		assert.False(t, strings.Contains(key, "key"), "response must not expose key material: %s", key)
	}

	status, body = env.get(t, "/api/v1/users/+15550009999/activity", true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["entries"], 1)
}

func TestSendRequiresIdempotencyKey(t *testing.T) {
	env := newEnv(t, nil)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/messages/send", strings.NewReader(`{"phoneNumber":"+15550001","message":"hi"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+env.token)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodPost, "/api/v1/messages/send", strings.NewReader(`{"phoneNumber":"+15550001","message":"hi"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+env.token)
	req.Header.Set("Idempotency-Key", "send-1")
	resp, err = env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestSetupRequiresDatabaseOutsideDev(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "production"}})
	assert.Error(t, err)
}

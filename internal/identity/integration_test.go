//go:build integration

package identity_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/congo-pay/safetext/internal/identity"
	"github.com/congo-pay/safetext/internal/infra"
	"github.com/congo-pay/safetext/internal/ledger"
	"github.com/congo-pay/safetext/internal/wallet"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "safetext_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/safetext_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool))

	t.Run("users", func(t *testing.T) {
		repo := identity.NewPostgresRepository(pool)
		u := identity.User{
			Phone:             "+15550009999",
			OwnerAddress:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			EncryptedOwnerKey: "00:11",
			WalletAddress:     common.HexToAddress("0x00000000000000000000000000000000000000bb"),
			DeployedBy:        common.HexToAddress("0x00000000000000000000000000000000000000cc"),
			CreatedAt:         time.Now(),
		}
		require.NoError(t, repo.Create(ctx, u))
		require.ErrorIs(t, repo.Create(ctx, u), identity.ErrAlreadyExists)

		got, err := repo.FindByPhone(ctx, u.Phone)
		require.NoError(t, err)
		require.Equal(t, u.WalletAddress, got.WalletAddress)
		require.Equal(t, u.EncryptedOwnerKey, got.EncryptedOwnerKey)

		_, err = repo.FindByPhone(ctx, "+1")
		require.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("deployments", func(t *testing.T) {
		repo := wallet.NewPostgresRepository(pool)
		_, err := repo.Get(ctx, wallet.KindSingleton)
		require.ErrorIs(t, err, wallet.ErrNoDeployment)

		addr := common.HexToAddress("0x00000000000000000000000000000000000000dd")
		require.NoError(t, repo.Save(ctx, wallet.KindSingleton, addr))
		got, err := repo.Get(ctx, wallet.KindSingleton)
		require.NoError(t, err)
		require.Equal(t, addr, got)
	})

	t.Run("journal", func(t *testing.T) {
		j := ledger.NewPostgresJournal(pool)
		entry := ledger.Entry{Phone: "+15550009999", Kind: ledger.KindMint, TxHash: common.HexToHash("0xabc"), Amount: "1"}
		saved, err := j.Record(ctx, entry)
		require.NoError(t, err)
		require.False(t, saved.CreatedAt.IsZero())

		_, err = j.Record(ctx, entry)
		require.ErrorIs(t, err, ledger.ErrDuplicateEntry)

		list, err := j.ListByPhone(ctx, entry.Phone, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, entry.TxHash, list[0].TxHash)
	})
}

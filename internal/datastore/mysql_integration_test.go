//go:build integration

package datastore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/bearwatch/bearwatch/internal/conf"
)

func newMySQLStore(t *testing.T) *MySQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("bearwatch"),
		tcmysql.WithUsername("bearwatch"),
		tcmysql.WithPassword("bearwatch"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := testSettings(t, conf.DatastoreMySQL, "")
	settings.Datastore.MySQL = conf.MySQLSettings{
		Host:     host,
		Port:     port.Int(),
		Username: "bearwatch",
		Password: "bearwatch",
		Database: "bearwatch",
	}

	store := &MySQLStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMySQLStoreContract(t *testing.T) {
	store := newMySQLStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

	first := event("台東縣", base, true, 0.9)
	second := event("花蓮縣", base, false, 0.2)
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
	assert.Equal(t, "台東縣", recent[1].Location)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			assert.NoError(t, store.Append(ctx, event("camera", time.Now(), false, 0.3)))
		})
	}
	wg.Wait()

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 22)
	require.NoError(t, store.Ping(ctx))
}

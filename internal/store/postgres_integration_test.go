package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/kvstore"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STAFFING_POSTGRES_DSN_INTEGRATION")
	if dsn == "" {
		t.Skip("set STAFFING_POSTGRES_DSN_INTEGRATION to run Postgres integration tests")
	}
	st, err := New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.RunMigrations(context.Background()))
	return st
}

func TestPostgresStoreIntegrationVersionedSave(t *testing.T) {
	ctx := context.Background()
	st := openIntegrationStore(t)

	key := "itest_jobs_" + time.Now().UTC().Format("20060102150405.000")
	defer st.Delete(ctx, key)

	v1, err := st.Save(ctx, key, []byte(`[{"id":"a"}]`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	_, err = st.Save(ctx, key, []byte(`[]`), 0)
	assert.True(t, errors.Is(err, kvstore.ErrConcurrentModification))

	v2, err := st.Save(ctx, key, []byte(`[{"id":"b"}]`), kvstore.AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	entry, found, err := st.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{"id":"b"}]`, string(entry.Data))
	assert.Equal(t, int64(2), entry.Version)

	_, err = st.ListWorkers(ctx)
	require.NoError(t, err)
}

func TestPostgresStoreIntegrationFirstInsertRace(t *testing.T) {
	ctx := context.Background()
	st := openIntegrationStore(t)

	key := "itest_race_" + time.Now().UTC().Format("20060102150405.000000")
	defer st.Delete(ctx, key)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.Save(ctx, key, []byte(`[]`), 0)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, kvstore.ErrConcurrentModification)
	}
	assert.Equal(t, 1, won)

	entry, found, err := st.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), entry.Version)
}

func TestPostgresStoreIntegrationMigrationsApplyOnce(t *testing.T) {
	ctx := context.Background()
	st := openIntegrationStore(t)
	require.NoError(t, st.RunMigrations(ctx))

	var n int
	require.NoError(t, st.pool.QueryRow(ctx,
		`SELECT count(*) FROM schema_migrations WHERE name IN ('0001_collections.sql', '0002_workers.sql')`).Scan(&n))
	assert.Equal(t, 2, n)
}

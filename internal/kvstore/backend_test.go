package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// exerciseBackend checks the versioning contract every backend shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, found, err := b.Load(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, found)

	v1, err := b.Save(ctx, "jobs", []byte(`[{"id":"a"}]`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	_, err = b.Save(ctx, "jobs", []byte(`[]`), 0)
	assert.True(t, errors.Is(err, ErrConcurrentModification))

	v2, err := b.Save(ctx, "jobs", []byte(`[{"id":"b"}]`), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	v3, err := b.Save(ctx, "jobs", []byte(`[{"id":"c"}]`), AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v3)

	entry, found, err := b.Load(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{"id":"c"}]`, string(entry.Data))
	assert.Equal(t, int64(3), entry.Version)

	require.NoError(t, b.Delete(ctx, "jobs"))
	_, found, err = b.Load(ctx, "jobs")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	exerciseBackend(t, b)

	require.NoError(t, b.Close())
	_, _, err := b.Load(context.Background(), "jobs")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer b.Close()
	exerciseBackend(t, b)
}

func TestRedisBackendFailureDegradesStore(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer b.Close()

	ctx := context.Background()
	c := NewCollection[item](New(b, Options{}), "jobs")
	require.True(t, c.SetAll(ctx, []item{{ID: "a"}}))

	mr.Close()
	assert.False(t, c.SetAll(ctx, []item{{ID: "a"}, {ID: "b"}}))
	assert.Len(t, c.GetAll(ctx), 2)
}

func newSQLite(t *testing.T) *GormBackend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "board.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	b := NewGormBackend(db)
	require.NoError(t, b.Migrate(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGormBackend(t *testing.T) {
	exerciseBackend(t, newSQLite(t))
}

func TestGormBackendBacksCollection(t *testing.T) {
	ctx := context.Background()
	c := NewCollection[item](New(newSQLite(t), Options{Strict: true}), "applications")
	require.NoError(t, c.Put(ctx, []item{{ID: "a", Name: "田中太郎"}}))
	got, ok := c.Find(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "田中太郎", got.Name)
}

func openSQLiteAt(t *testing.T, path string) *GormBackend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	b := NewGormBackend(db)
	require.NoError(t, b.Migrate(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGormBackendConcurrentFirstSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "board.db")
	// Two handles on one file stand in for two processes.
	backends := []*GormBackend{openSQLiteAt(t, path), openSQLiteAt(t, path)}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = backends[i%2].Save(ctx, "jobs", []byte(`[]`), 0)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrConcurrentModification)
	}
	assert.Equal(t, 1, won)

	// A degraded store would stop persisting; losers must leave it healthy.
	st := New(backends[1], Options{Strict: true})
	c := NewCollection[item](st, "jobs")
	require.NoError(t, c.Put(ctx, []item{{ID: "a"}}))
	assert.False(t, st.Degraded())
}

func TestIsContention(t *testing.T) {
	assert.True(t, isContention(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isContention(fmt.Errorf("tx: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.True(t, isContention(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, isContention(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}))
	assert.True(t, isContention(gorm.ErrDuplicatedKey))
	assert.False(t, isContention(errors.New("disk I/O error")))
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestFileBackendSharedBetweenStores(t *testing.T) {
	dir := t.TempDir()
	b1, err := NewFileBackend(dir)
	require.NoError(t, err)
	b2, err := NewFileBackend(dir)
	require.NoError(t, err)

	ctx := context.Background()
	w := NewCollection[item](New(b1, Options{}), "threads")
	r := NewCollection[item](New(b2, Options{}), "threads")
	require.True(t, w.Append(ctx, item{ID: "t1"}))
	assert.Equal(t, []item{{ID: "t1"}}, r.GetAll(ctx))
}

func TestFileBackendWatch(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	require.NoError(t, b.Watch(ctx, "events", func() { hits.Add(1) }))

	other, err := NewFileBackend(dir)
	require.NoError(t, err)
	_, err = other.Save(ctx, "unrelated", []byte(`[]`), AnyVersion)
	require.NoError(t, err)
	_, err = other.Save(ctx, "events", []byte(`[]`), AnyVersion)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	before := hits.Load()
	_, err = other.Save(context.Background(), "events", []byte(`[1]`), AnyVersion)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, hits.Load())
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeKey("a/b:c"))
	assert.Equal(t, "__secret", sanitizeKey("../secret"))
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
)

func exerciseMedium(t *testing.T, m Medium) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := m.Load(ctx, "cart")
	require.NoError(t, err)
	assert.False(t, ok)

	blob := []byte(`{"version":1,"items":[{"productRef":"1","quantity":2}]}`)
	require.NoError(t, m.Save(ctx, "cart", blob))
	got, ok, err := m.Load(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blob, got)

	require.NoError(t, m.Save(ctx, "cart", []byte(`{}`)))
	got, ok, err = m.Load(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{}`), got)

	require.NoError(t, m.Save(ctx, "cart:other/user", []byte(`x`)))
	got, ok, err = m.Load(ctx, "cart:other/user")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`x`), got)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseMedium(t, m)

	// изменение возвращённого среза не затрагивает хранилище
	ctx := context.Background()
	got, _, _ := m.Load(ctx, "cart")
	got[0] = '!'
	again, _, _ := m.Load(ctx, "cart")
	assert.Equal(t, []byte(`{}`), again)
}

func TestFile(t *testing.T) {
	m, err := NewFile(filepath.Join(t.TempDir(), "carts"))
	require.NoError(t, err)
	exerciseMedium(t, m)
	require.NoError(t, m.Close())
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	m, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	exerciseMedium(t, m)
	require.NoError(t, m.Close())

	// данные переживают переоткрытие
	m, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer m.Close()
	got, ok, err := m.Load(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{}`), got)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewRedis(client, time.Hour)
	exerciseMedium(t, m)

	assert.Equal(t, time.Hour, mr.TTL("cart"))
	mr.FastForward(2 * time.Hour)
	_, ok, err := m.Load(context.Background(), "cart")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, m.Close())
}

func TestRedis_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewRedis(client, 0)
	mr.Close()

	require.Error(t, m.Save(context.Background(), "cart", []byte(`{}`)))
	_, _, err := m.Load(context.Background(), "cart")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	m, err := Open(ctx, config.Store{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	m, err = Open(ctx, config.Store{Driver: config.DriverFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, m)

	m, err = Open(ctx, config.Store{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, m)
	require.NoError(t, m.Close())

	mr := miniredis.RunT(t)
	m, err = Open(ctx, config.Store{Driver: config.DriverRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, m)
	require.NoError(t, m.Close())

	_, err = Open(ctx, config.Store{Driver: "etcd"})
	require.Error(t, err)
}

//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idreg/internal/ir"
	"github.com/roach88/idreg/internal/testutil/containers"
)

func TestRedisBackend_Contract(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	runBackendContract(t, NewRedisBackend(rc.Client, "contract:"))
}

func TestRedisBackend_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	one := NewRedisBackend(rc.Client, "one:")
	two := NewRedisBackend(rc.Client, "two:")
	require.NoError(t, one.Apply(ctx, []Mutation{{Key: "k", Value: []byte("1")}}))

	_, err := two.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	pairs, err := two.Scan(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestRedisBackend_GlobCharactersInPrefix(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	b := NewRedisBackend(rc.Client, "reg[*]?:")
	require.NoError(t, b.Apply(ctx, []Mutation{{Key: "a", Value: []byte("1")}}))
	other := NewRedisBackend(rc.Client, "regX:")
	require.NoError(t, other.Apply(ctx, []Mutation{{Key: "a", Value: []byte("2")}}))

	pairs, err := b.Scan(ctx, "")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, []byte("1"), pairs[0].Value)
}

func TestRedisBackend_StoreMatchesSQLiteDigest(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	r, err := OpenRedis(ctx, rc.URL, "idreg:")
	require.NoError(t, err)
	redisStore := New(r)
	sqliteStore := New(createSQLiteBackend(t))

	records := map[ir.AccountID]ir.IdentityRecord{
		alice: testRecord(alice, "a", "1", 1, 1),
		bob:   testRecord(bob, "b", "2", 2, 2),
	}
	commitRecords(t, redisStore, records)
	commitRecords(t, sqliteStore, records)

	d1, err := redisStore.Digest(ctx)
	require.NoError(t, err)
	d2, err := sqliteStore.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

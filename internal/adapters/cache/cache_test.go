package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alejandrodnm/surebet/internal/adapters/cache"
	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func makeSet(t *testing.T) domain.BetSet {
	t.Helper()
	n := 0
	set, err := domain.NewBetSet(domain.NewSetInput{
		Event: "A vs B",
		Legs: [2]domain.LegInput{
			{Bookmaker: "bet365", Stake: decimal.RequireFromString("100"), Odd: decimal.RequireFromString("2.10")},
			{Bookmaker: "Pinnacle", Stake: decimal.RequireFromString("90"), Odd: decimal.RequireFromString("2.30")},
		},
	}, now, func() string { n++; return fmt.Sprintf("%s-%d", t.Name(), n) })
	require.NoError(t, err)
	return set
}

func TestMemoryCache_PutGetInvalidate(t *testing.T) {
	c := cache.NewMemoryCache(0)
	ctx := context.Background()
	set := makeSet(t)

	_, ok := c.Get(ctx, set.ID)
	assert.False(t, ok)

	c.Put(ctx, set)
	got, ok := c.Get(ctx, set.ID)
	require.True(t, ok)
	assert.Equal(t, set.ID, got.ID)

	c.Invalidate(ctx, set.ID)
	_, ok = c.Get(ctx, set.ID)
	assert.False(t, ok)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := cache.NewMemoryCache(0)
	ctx := context.Background()
	set := makeSet(t)
	c.Put(ctx, set)

	got, _ := c.Get(ctx, set.ID)
	got.Legs[0].Bookmaker = "mutated"

	again, _ := c.Get(ctx, set.ID)
	assert.Equal(t, "bet365", again.Legs[0].Bookmaker)
}

func TestMemoryCache_Expires(t *testing.T) {
	clock := now
	c := cache.NewMemoryCache(time.Minute).WithClock(func() time.Time { return clock })
	ctx := context.Background()
	set := makeSet(t)

	c.Put(ctx, set)
	clock = clock.Add(30 * time.Second)
	_, ok := c.Get(ctx, set.ID)
	assert.True(t, ok)

	clock = clock.Add(time.Minute)
	_, ok = c.Get(ctx, set.ID)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_PutKeepsNewerVersion(t *testing.T) {
	c := cache.NewMemoryCache(0)
	ctx := context.Background()

	newer := makeSet(t)
	newer.Version = 3
	newer.Status = domain.StatusResolved
	c.Put(ctx, newer)

	stale := newer.Clone()
	stale.Version = 2
	stale.Status = domain.StatusPending
	c.Put(ctx, stale)

	got, ok := c.Get(ctx, newer.ID)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, domain.StatusResolved, got.Status, "un Put con versión vieja no pisa")

	// misma versión: reemplaza (rollback de una escritura optimista)
	same := newer.Clone()
	same.Status = domain.StatusPending
	c.Put(ctx, same)
	got, _ = c.Get(ctx, newer.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestMemoryCache_ExpiredEntryAcceptsOlderVersion(t *testing.T) {
	clock := now
	c := cache.NewMemoryCache(time.Minute).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	set := makeSet(t)
	set.Version = 5
	c.Put(ctx, set)

	clock = clock.Add(2 * time.Minute)
	older := set.Clone()
	older.Version = 4
	c.Put(ctx, older)

	got, ok := c.Get(ctx, set.ID)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.Version)
}

func TestNop(t *testing.T) {
	var c cache.Nop
	ctx := context.Background()
	set := makeSet(t)
	c.Put(ctx, set)
	_, ok := c.Get(ctx, set.ID)
	assert.False(t, ok)
}

// Requiere un Redis desechable: SUREBET_TEST_REDIS_ADDR=localhost:6379
func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("SUREBET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SUREBET_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	set := makeSet(t)
	require.NoError(t, set.ApplyOutcome(set.Legs[0].ID, domain.OutcomeWon, now))
	require.NoError(t, set.ApplyOutcome(set.Legs[1].ID, domain.OutcomeReturned, now))
	c.Put(ctx, set)
	defer c.Invalidate(ctx, set.ID)

	got, ok := c.Get(ctx, set.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusResolved, got.Status)
	require.True(t, got.Legs[1].ActualProfit.Valid)
	assert.True(t, decimal.RequireFromString("200").Equal(got.Legs[1].ActualProfit.Decimal))
	assert.Equal(t, domain.OutcomeReturned, got.Legs[1].Outcome)
}

func TestRedisCache_PutKeepsNewerVersion(t *testing.T) {
	addr := os.Getenv("SUREBET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SUREBET_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	set := makeSet(t)
	set.Version = 2
	c.Put(ctx, set)
	defer c.Invalidate(ctx, set.ID)

	stale := set.Clone()
	stale.Version = 1
	stale.Event = "stale"
	c.Put(ctx, stale)

	got, ok := c.Get(ctx, set.ID)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, set.Event, got.Event)
}

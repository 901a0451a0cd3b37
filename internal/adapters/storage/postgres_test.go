package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/alejandrodnm/surebet/internal/adapters/storage"
	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requiere una base de datos desechable: SUREBET_TEST_POSTGRES_DSN=postgres://...
func openPostgres(t *testing.T) *storage.PostgresStorage {
	t.Helper()
	dsn := os.Getenv("SUREBET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUREBET_TEST_POSTGRES_DSN not set")
	}
	db, err := storage.NewPostgresStorage(context.Background(), dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresStorage_Lifecycle(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()

	set := makeSet(t, "PG vs SQL", now, "bet365", "Pinnacle")
	require.NoError(t, db.CreateSet(ctx, set))
	t.Cleanup(func() { _ = db.DeleteSet(ctx, set.ID) })

	got, err := db.GetSet(ctx, set.ID)
	require.NoError(t, err)
	require.Len(t, got.Legs, 2)
	assert.True(t, d("-2014").Equal(got.Legs[0].PotentialProfit))

	updated, err := db.UpdateSet(ctx, set.ID, func(s *domain.BetSet) error {
		if err := s.ApplyOutcome(s.Legs[0].ID, domain.OutcomeWon, now); err != nil {
			return err
		}
		return s.ApplyOutcome(s.Legs[1].ID, domain.OutcomeLost, now)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	sets, faults, err := db.ListSets(ctx, domain.SetFilter{Status: domain.StatusResolved, Bookmaker: "PINNACLE"})
	require.NoError(t, err)
	assert.Empty(t, faults)
	var found bool
	for _, s := range sets {
		if s.ID == set.ID {
			found = true
			profit, ok := s.Profit()
			require.True(t, ok)
			assert.True(t, d("-2014").Equal(profit))
			assert.Equal(t, int64(2), s.Version)
		}
	}
	assert.True(t, found)

	require.NoError(t, db.DeleteSet(ctx, set.ID))
	_, err = db.GetSet(ctx, set.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

const (
	addrA = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

// runStoreContract exercises the behaviour every Store implementation shares
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("add and list", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, err := s.UpsertUser(ctx, 1, "alice")
		require.NoError(t, err)

		w, err := s.AddWallet(ctx, 1, "main", addrA, 5)
		require.NoError(t, err)
		assert.Equal(t, models.NormalizeAddress(addrA), w.Address)
		assert.Equal(t, uint64(0), w.Watermark)

		list, err := s.ListWallets(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "main", list[0].Name)

		all, err := s.ListAllWallets(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, types.PlanFree, all[0].Plan)
		assert.Equal(t, int64(1), all[0].OwnerID)
	})

	t.Run("address is globally unique", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		_, _ = s.UpsertUser(ctx, 2, "bob")

		_, err := s.AddWallet(ctx, 1, "main", addrA, 5)
		require.NoError(t, err)

		_, err = s.AddWallet(ctx, 2, "copy", addrA, 5)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyMonitored)

		list, err := s.ListWallets(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("name unique per owner", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		_, _ = s.UpsertUser(ctx, 2, "bob")

		_, err := s.AddWallet(ctx, 1, "main", addrA, 5)
		require.NoError(t, err)
		_, err = s.AddWallet(ctx, 1, "main", addrB, 5)
		assert.ErrorIs(t, err, apperrors.ErrNameTaken)

		_, err = s.AddWallet(ctx, 2, "main", addrB, 5)
		assert.NoError(t, err, "another owner may reuse the name")
	})

	t.Run("quota enforced and state unchanged", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")

		_, err := s.AddWallet(ctx, 1, "one", addrA, 2)
		require.NoError(t, err)
		_, err = s.AddWallet(ctx, 1, "two", addrB, 2)
		require.NoError(t, err)

		_, err = s.AddWallet(ctx, 1, "three", addrC, 2)
		assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

		list, err := s.ListWallets(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		all, err := s.ListAllWallets(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("concurrent adds respect quota", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				addr := fmt.Sprintf("0x%040x", i+1)
				if _, err := s.AddWallet(ctx, 1, fmt.Sprintf("w%d", i), addr, 3); err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 3, ok)
		list, err := s.ListWallets(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})

	t.Run("add for unknown user", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, err := s.AddWallet(ctx, 42, "main", addrA, 5)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		_, err := s.AddWallet(ctx, 1, "main", addrA, 5)
		require.NoError(t, err)

		require.NoError(t, s.RemoveWallet(ctx, 1, "main"))
		assert.ErrorIs(t, s.RemoveWallet(ctx, 1, "main"), apperrors.ErrNotFound)

		_, _ = s.UpsertUser(ctx, 2, "bob")
		_, err = s.AddWallet(ctx, 2, "mine-now", addrA, 5)
		assert.NoError(t, err, "removed address can be monitored again")
	})

	t.Run("rename", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		_, _ = s.AddWallet(ctx, 1, "a", addrA, 5)
		_, _ = s.AddWallet(ctx, 1, "b", addrB, 5)

		require.NoError(t, s.RenameWallet(ctx, 1, "a", "savings"))
		assert.ErrorIs(t, s.RenameWallet(ctx, 1, "b", "savings"), apperrors.ErrNameTaken)
		assert.ErrorIs(t, s.RenameWallet(ctx, 1, "missing", "x"), apperrors.ErrNotFound)

		list, err := s.ListWallets(ctx, 1)
		require.NoError(t, err)
		names := []string{list[0].Name, list[1].Name}
		assert.ElementsMatch(t, []string{"savings", "b"}, names)
	})

	t.Run("watermark only moves forward", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		_, _ = s.AddWallet(ctx, 1, "main", addrA, 5)

		advanced, err := s.AdvanceWatermark(ctx, addrA, 100)
		require.NoError(t, err)
		assert.True(t, advanced)

		advanced, err = s.AdvanceWatermark(ctx, addrA, 100)
		require.NoError(t, err)
		assert.False(t, advanced, "equal value is a no-op")

		advanced, err = s.AdvanceWatermark(ctx, addrA, 50)
		require.NoError(t, err)
		assert.False(t, advanced)

		all, err := s.ListAllWallets(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), all[0].Watermark)

		advanced, err = s.AdvanceWatermark(ctx, addrC, 10)
		require.NoError(t, err)
		assert.False(t, advanced, "unknown wallet is a no-op")
	})

	t.Run("upsert user is idempotent and keeps plan", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		u, err := s.UpsertUser(ctx, 7, "carol")
		require.NoError(t, err)
		assert.Equal(t, types.PlanFree, u.Plan)
		assert.Equal(t, types.SubscriptionInactive, u.Subscription.Status)

		require.NoError(t, s.SetPlan(ctx, 7, types.PlanPro, models.Subscription{Provider: "stripe", CustomerID: "cus_1"}))

		u, err = s.UpsertUser(ctx, 7, "")
		require.NoError(t, err)
		assert.Equal(t, "carol", u.DisplayName)
		assert.Equal(t, types.PlanPro, u.Plan)
		assert.Equal(t, types.SubscriptionActive, u.Subscription.Status)
		assert.Equal(t, "cus_1", u.Subscription.CustomerID)
	})

	t.Run("set plan creates missing user", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		require.NoError(t, s.SetPlan(ctx, 9, types.PlanBasic, models.Subscription{}))

		u, err := s.GetUser(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, types.PlanBasic, u.Plan)

		_, err = s.GetUser(ctx, 10)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("downgrade does not evict", func(t *testing.T) {
		s, ctx := newStore(t), testContext(t)
		_, _ = s.UpsertUser(ctx, 1, "alice")
		require.NoError(t, s.SetPlan(ctx, 1, types.PlanBasic, models.Subscription{}))
		_, _ = s.AddWallet(ctx, 1, "a", addrA, 5)
		_, _ = s.AddWallet(ctx, 1, "b", addrB, 5)

		require.NoError(t, s.SetPlan(ctx, 1, types.PlanFree, models.Subscription{Status: types.SubscriptionInactive}))

		list, err := s.ListWallets(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = s.AddWallet(ctx, 1, "c", addrC, 1)
		assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	})
}

func mustAdd(t *testing.T, ctx context.Context, s Store, owner int64, name, addr string) {
	t.Helper()
	_, err := s.AddWallet(ctx, owner, name, addr, 100)
	require.NoError(t, err)
}

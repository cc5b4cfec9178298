package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

// MemoryStore is a mutex-guarded Store for tests and single-process dev runs.
// It enforces the same uniqueness, quota and monotonic-watermark rules as
// PostgresStore.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[int64]*models.User
	wallets map[string]*models.Wallet // keyed by lower-cased address
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int64]*models.User),
		wallets: make(map[string]*models.Wallet),
		now:     time.Now,
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// ListAllWallets returns copies of every wallet ordered by address
func (s *MemoryStore) ListAllWallets(ctx context.Context) ([]models.OwnedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OwnedWallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		plan := types.PlanFree
		if u, ok := s.users[w.OwnerID]; ok {
			plan = u.Plan
		}
		out = append(out, models.OwnedWallet{Wallet: copyWallet(w), Plan: plan})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// AdvanceWatermark applies newBlock only if it is strictly greater
func (s *MemoryStore) AdvanceWatermark(ctx context.Context, address string, newBlock uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[models.NormalizeAddress(address)]
	if !ok || w.Watermark >= newBlock {
		return false, nil
	}
	w.Watermark = newBlock
	w.UpdatedAt = s.now()
	return true, nil
}

// AddWallet registers an address for ownerID
func (s *MemoryStore) AddWallet(ctx context.Context, ownerID int64, name, address string, limit int) (*models.Wallet, error) {
	address = models.NormalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[ownerID]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", strconv.FormatInt(ownerID, 10))
	}
	if _, taken := s.wallets[address]; taken {
		return nil, apperrors.NewAlreadyMonitoredError(address)
	}

	count := 0
	for _, w := range s.wallets {
		if w.OwnerID != ownerID {
			continue
		}
		count++
		if w.Name == name {
			return nil, apperrors.NewNameTakenError(name)
		}
	}
	if count >= limit {
		return nil, apperrors.NewQuotaExceededError(user.Plan, limit)
	}

	now := s.now()
	w := &models.Wallet{
		OwnerID:          ownerID,
		Name:             name,
		Address:          address,
		WatchedContracts: []models.WatchedContract{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.wallets[address] = w

	out := copyWallet(w)
	return &out, nil
}

// RemoveWallet deletes the owner's wallet called name
func (s *MemoryStore) RemoveWallet(ctx context.Context, ownerID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.findByName(ownerID, name)
	if w == nil {
		return apperrors.NewNotFoundError("wallet", name)
	}
	delete(s.wallets, w.Address)
	return nil
}

// RenameWallet changes the display name of one of the owner's wallets
func (s *MemoryStore) RenameWallet(ctx context.Context, ownerID int64, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.findByName(ownerID, oldName)
	if w == nil {
		return apperrors.NewNotFoundError("wallet", oldName)
	}
	if oldName == newName {
		return nil
	}
	if s.findByName(ownerID, newName) != nil {
		return apperrors.NewNameTakenError(newName)
	}
	w.Name = newName
	w.UpdatedAt = s.now()
	return nil
}

// ListWallets returns the owner's wallets in insertion order
func (s *MemoryStore) ListWallets(ctx context.Context, ownerID int64) ([]*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Wallet{}
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			c := copyWallet(w)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpsertUser creates the user on first contact and refreshes the display name
func (s *MemoryStore) UpsertUser(ctx context.Context, id int64, displayName string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{
			ID:           id,
			Plan:         types.PlanFree,
			Subscription: models.Subscription{Status: types.SubscriptionInactive},
			CreatedAt:    now,
		}
		s.users[id] = u
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	u.UpdatedAt = now

	out := *u
	return &out, nil
}

// GetUser retrieves a user by chat id
func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	out := *u
	return &out, nil
}

// SetPlan records a confirmed checkout, creating the user if needed
func (s *MemoryStore) SetPlan(ctx context.Context, id int64, plan types.PlanTier, sub models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.Status == "" {
		sub.Status = types.SubscriptionActive
	}

	now := s.now()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{ID: id, CreatedAt: now}
		s.users[id] = u
	}
	u.Plan = plan
	u.Subscription = sub
	u.UpdatedAt = now
	return nil
}

func (s *MemoryStore) findByName(ownerID int64, name string) *models.Wallet {
	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.Name == name {
			return w
		}
	}
	return nil
}

func copyWallet(w *models.Wallet) models.Wallet {
	c := *w
	c.WatchedContracts = append([]models.WatchedContract(nil), w.WatchedContracts...)
	return c
}

package worker

import (
	"sort"

	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

// WalletPriority is a wallet queued for one sweep with its dispatch priority
type WalletPriority struct {
	Wallet   models.OwnedWallet
	Priority int // Higher number = dispatched earlier
}

// RankFunc maps a plan tier to its dispatch priority
type RankFunc func(types.PlanTier) int

// PriorityQueue orders the wallets of one sweep: paid plans first, then by
// address for a stable order. Addresses are de-duplicated so no two workers
// ever hold the same wallet.
type PriorityQueue struct {
	items []WalletPriority
}

// NewPriorityQueue builds the dispatch order for wallets. When the same
// address appears more than once the highest priority entry wins.
func NewPriorityQueue(wallets []models.OwnedWallet, rank RankFunc) *PriorityQueue {
	byAddress := make(map[string]WalletPriority, len(wallets))
	for _, w := range wallets {
		w.Address = models.NormalizeAddress(w.Address)
		p := WalletPriority{Wallet: w, Priority: rank(w.Plan)}
		if existing, ok := byAddress[w.Address]; ok && existing.Priority >= p.Priority {
			continue
		}
		byAddress[w.Address] = p
	}

	items := make([]WalletPriority, 0, len(byAddress))
	for _, p := range byAddress {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].Wallet.Address < items[j].Wallet.Address
	})

	return &PriorityQueue{items: items}
}

// Len returns the number of distinct wallets
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Wallets returns the wallets in dispatch order
func (pq *PriorityQueue) Wallets() []models.OwnedWallet {
	out := make([]models.OwnedWallet, len(pq.items))
	for i, p := range pq.items {
		out[i] = p.Wallet
	}
	return out
}

// SplitByTier counts paid and free wallets
func (pq *PriorityQueue) SplitByTier() (paid, free int) {
	for _, p := range pq.items {
		if p.Wallet.Plan == types.PlanFree || p.Wallet.Plan == "" {
			free++
		} else {
			paid++
		}
	}
	return paid, free
}

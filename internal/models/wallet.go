package models

import (
	"strings"
	"time"

	"github.com/wallet-watch/internal/types"
)

// Wallet is a monitored address owned by exactly one user
type Wallet struct {
	OwnerID          int64             `json:"ownerId" db:"owner_id"`
	Name             string            `json:"name" db:"name"`
	Address          string            `json:"address" db:"address"` // always lower-cased
	Watermark        uint64            `json:"watermark" db:"watermark"`
	WatchedContracts []WatchedContract `json:"watchedContracts,omitempty" db:"watched_contracts"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" db:"updated_at"`
}

// WatchedContract is a (contract, label) pair attached to a wallet.
// Not consumed by the sweep yet.
type WatchedContract struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

// OwnedWallet pairs a wallet with what the sweep needs to know about its owner
type OwnedWallet struct {
	Wallet
	Plan types.PlanTier
}

// NormalizeAddress returns the canonical comparison form of an address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

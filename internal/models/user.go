// Package models provides data models for the wallet watcher.
package models

import (
	"time"

	"github.com/wallet-watch/internal/types"
)

// User represents a chat account that owns wallets
type User struct {
	ID           int64          `json:"id" db:"id"` // Telegram chat id
	DisplayName  string         `json:"displayName" db:"display_name"`
	Plan         types.PlanTier `json:"plan" db:"plan"`
	Subscription Subscription   `json:"subscription"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// Subscription holds payment-provider metadata for a user
type Subscription struct {
	Provider   string                   `json:"provider,omitempty" db:"sub_provider"`
	CustomerID string                   `json:"customerId,omitempty" db:"sub_customer_id"`
	Status     types.SubscriptionStatus `json:"status" db:"sub_status"`
}

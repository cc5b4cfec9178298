package models

import (
	"time"

	"github.com/wallet-watch/internal/types"
)

// ActivityEvent is one classified transaction as seen by a sweep. Events are
// appended to the analytics log; nothing reads them back on the hot path.
type ActivityEvent struct {
	SweepID     string
	OwnerID     int64
	WalletName  string
	Address     string
	TxHash      string
	BlockNumber uint64
	Direction   types.TransactionDirection
	Verdict     types.Verdict
	Amount      string // native units, 6 decimals; empty unless relevant
	Notified    bool
	ObservedAt  time.Time
}

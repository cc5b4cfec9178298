package storage

import (
	"context"

	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

// Store is the persistent wallet registry and watermark cursor.
//
// AdvanceWatermark applies only when newBlock is strictly greater than the
// stored value, so a lagging writer can never move a cursor backwards.
// Registry errors match the sentinels in internal/errors.
type Store interface {
	ListAllWallets(ctx context.Context) ([]models.OwnedWallet, error)
	AdvanceWatermark(ctx context.Context, address string, newBlock uint64) (bool, error)

	AddWallet(ctx context.Context, ownerID int64, name, address string, limit int) (*models.Wallet, error)
	RemoveWallet(ctx context.Context, ownerID int64, name string) error
	RenameWallet(ctx context.Context, ownerID int64, oldName, newName string) error
	ListWallets(ctx context.Context, ownerID int64) ([]*models.Wallet, error)

	UpsertUser(ctx context.Context, id int64, displayName string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SetPlan(ctx context.Context, id int64, plan types.PlanTier, sub models.Subscription) error

	Ping(ctx context.Context) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

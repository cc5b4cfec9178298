package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wallet-watch/internal/config"
	"github.com/wallet-watch/internal/models"
)

// ClickHouseDB wraps the ClickHouse connection
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 30,
		},
		DialTimeout:      5 * time.Second,
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec executes a query without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}

// ActivityRepository appends sweep activity to ClickHouse
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// RecordBatch inserts events in a single batch
func (r *ActivityRepository) RecordBatch(ctx context.Context, events []models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO wallet_activity (
			sweep_id, owner_id, wallet_name, address, tx_hash, block_number,
			direction, verdict, amount, notified, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.SweepID,
			e.OwnerID,
			e.WalletName,
			e.Address,
			e.TxHash,
			e.BlockNumber,
			string(e.Direction),
			string(e.Verdict),
			e.Amount,
			e.Notified,
			e.ObservedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event for tx %s: %w", e.TxHash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// CountByAddress returns how many events were logged for an address
func (r *ActivityRepository) CountByAddress(ctx context.Context, address string) (uint64, error) {
	var count uint64
	err := r.db.Conn().QueryRow(ctx, `SELECT count() FROM wallet_activity WHERE address = ?`,
		models.NormalizeAddress(address)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return count, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

const (
	pgUniqueViolation = "23505"

	constraintWalletAddress   = "wallets_address_key"
	constraintWalletOwnerName = "wallets_owner_name_key"
)

// PostgresStore implements Store on Postgres
type PostgresStore struct {
	db *PostgresDB
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks if the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ListAllWallets returns every monitored wallet with its owner's plan
func (s *PostgresStore) ListAllWallets(ctx context.Context) ([]models.OwnedWallet, error) {
	query := `
		SELECT w.owner_id, w.name, w.address, w.watermark, w.watched_contracts,
		       w.created_at, w.updated_at, u.plan
		FROM wallets w
		JOIN users u ON u.id = w.owner_id
		ORDER BY w.address
	`

	rows, err := s.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("list all wallets", err)
	}
	defer rows.Close()

	var out []models.OwnedWallet
	for rows.Next() {
		var ow models.OwnedWallet
		if err := scanWallet(rows, &ow.Wallet, &ow.Plan); err != nil {
			return nil, apperrors.NewStoreUnavailableError("list all wallets", err)
		}
		out = append(out, ow)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("list all wallets", err)
	}

	return out, nil
}

// AdvanceWatermark moves the wallet's watermark forward. It returns false
// when the stored value is already >= newBlock or the wallet was removed.
func (s *PostgresStore) AdvanceWatermark(ctx context.Context, address string, newBlock uint64) (bool, error) {
	block, err := toInt64(newBlock)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE wallets
		SET watermark = $2, updated_at = NOW()
		WHERE address = $1 AND watermark < $2
	`

	tag, err := s.db.Pool().Exec(ctx, query, models.NormalizeAddress(address), block)
	if err != nil {
		return false, apperrors.NewStoreUnavailableError("advance watermark", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AddWallet registers an address for ownerID. The owner row is locked for the
// duration so concurrent adds by the same user cannot both pass the quota check.
func (s *PostgresStore) AddWallet(ctx context.Context, ownerID int64, name, address string, limit int) (*models.Wallet, error) {
	address = models.NormalizeAddress(address)

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	var plan types.PlanTier
	err = tx.QueryRow(ctx, `SELECT plan FROM users WHERE id = $1 FOR UPDATE`, ownerID).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", strconv.FormatInt(ownerID, 10))
		}
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE address = $1)`, address).Scan(&exists)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}
	if exists {
		return nil, apperrors.NewAlreadyMonitoredError(address)
	}

	var count, sameName int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE name = $2)
		FROM wallets WHERE owner_id = $1
	`, ownerID, name).Scan(&count, &sameName)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}
	if sameName > 0 {
		return nil, apperrors.NewNameTakenError(name)
	}
	if count >= limit {
		return nil, apperrors.NewQuotaExceededError(plan, limit)
	}

	wallet := &models.Wallet{
		OwnerID:          ownerID,
		Name:             name,
		Address:          address,
		WatchedContracts: []models.WatchedContract{},
	}

	query := `
		INSERT INTO wallets (owner_id, name, address)
		VALUES ($1, $2, $3)
		RETURNING watermark, created_at, updated_at
	`

	var watermark int64
	err = tx.QueryRow(ctx, query, ownerID, name, address).Scan(&watermark, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err, name, address); mapped != nil {
			return nil, mapped
		}
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}
	wallet.Watermark = uint64(watermark)

	if err := tx.Commit(ctx); err != nil {
		if mapped := mapUniqueViolation(err, name, address); mapped != nil {
			return nil, mapped
		}
		return nil, apperrors.NewStoreUnavailableError("add wallet", err)
	}

	return wallet, nil
}

// RemoveWallet deletes the owner's wallet called name
func (s *PostgresStore) RemoveWallet(ctx context.Context, ownerID int64, name string) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM wallets WHERE owner_id = $1 AND name = $2`, ownerID, name)
	if err != nil {
		return apperrors.NewStoreUnavailableError("remove wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("wallet", name)
	}
	return nil
}

// RenameWallet changes the display name of one of the owner's wallets
func (s *PostgresStore) RenameWallet(ctx context.Context, ownerID int64, oldName, newName string) error {
	query := `
		UPDATE wallets
		SET name = $3, updated_at = NOW()
		WHERE owner_id = $1 AND name = $2
	`

	tag, err := s.db.Pool().Exec(ctx, query, ownerID, oldName, newName)
	if err != nil {
		if mapped := mapUniqueViolation(err, newName, ""); mapped != nil {
			return mapped
		}
		return apperrors.NewStoreUnavailableError("rename wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("wallet", oldName)
	}
	return nil
}

// ListWallets returns the owner's wallets in insertion order
func (s *PostgresStore) ListWallets(ctx context.Context, ownerID int64) ([]*models.Wallet, error) {
	query := `
		SELECT owner_id, name, address, watermark, watched_contracts, created_at, updated_at
		FROM wallets
		WHERE owner_id = $1
		ORDER BY created_at, name
	`

	rows, err := s.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("list wallets", err)
	}
	defer rows.Close()

	wallets := []*models.Wallet{}
	for rows.Next() {
		var w models.Wallet
		if err := scanWallet(rows, &w, nil); err != nil {
			return nil, apperrors.NewStoreUnavailableError("list wallets", err)
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("list wallets", err)
	}

	return wallets, nil
}

// scanWallet reads one wallet row; plan is scanned only when non-nil
func scanWallet(row pgx.Row, w *models.Wallet, plan *types.PlanTier) error {
	var watermark int64
	var contractsJSON []byte

	dest := []interface{}{
		&w.OwnerID, &w.Name, &w.Address, &watermark, &contractsJSON, &w.CreatedAt, &w.UpdatedAt,
	}
	if plan != nil {
		dest = append(dest, plan)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}

	w.Watermark = uint64(watermark)
	if len(contractsJSON) > 0 {
		if err := json.Unmarshal(contractsJSON, &w.WatchedContracts); err != nil {
			return fmt.Errorf("failed to unmarshal watched contracts: %w", err)
		}
	}
	return nil
}

// mapUniqueViolation turns a unique constraint error into the matching registry error
func mapUniqueViolation(err error, name, address string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintWalletAddress:
		return apperrors.NewAlreadyMonitoredError(address)
	case constraintWalletOwnerName:
		return apperrors.NewNameTakenError(name)
	}
	return nil
}

func toInt64(block uint64) (int64, error) {
	if block > uint64(1<<63-1) {
		return 0, apperrors.NewInvalidParameterError("block", "exceeds int64 range")
	}
	return int64(block), nil
}

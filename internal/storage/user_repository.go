package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/types"
)

const userColumns = `id, display_name, plan, sub_provider, sub_customer_id, sub_status, created_at, updated_at`

// UpsertUser creates the user on first contact. A later call refreshes the
// display name but never touches plan or subscription.
func (s *PostgresStore) UpsertUser(ctx context.Context, id int64, displayName string) (*models.User, error) {
	query := `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
			updated_at = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(s.db.Pool().QueryRow(ctx, query, id, displayName))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("upsert user", err)
	}
	return user, nil
}

// GetUser retrieves a user by chat id
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", strconv.FormatInt(id, 10))
		}
		return nil, apperrors.NewStoreUnavailableError("get user", err)
	}
	return user, nil
}

// SetPlan records a confirmed checkout. Payment can arrive before the user
// ever talked to the bot, so the row is created if missing.
func (s *PostgresStore) SetPlan(ctx context.Context, id int64, plan types.PlanTier, sub models.Subscription) error {
	if sub.Status == "" {
		sub.Status = types.SubscriptionActive
	}

	query := `
		INSERT INTO users (id, plan, sub_provider, sub_customer_id, sub_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			plan = EXCLUDED.plan,
			sub_provider = EXCLUDED.sub_provider,
			sub_customer_id = EXCLUDED.sub_customer_id,
			sub_status = EXCLUDED.sub_status,
			updated_at = NOW()
	`

	if _, err := s.db.Pool().Exec(ctx, query, id, plan, sub.Provider, sub.CustomerID, sub.Status); err != nil {
		return apperrors.NewStoreUnavailableError("set plan", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.Plan,
		&u.Subscription.Provider,
		&u.Subscription.CustomerID,
		&u.Subscription.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

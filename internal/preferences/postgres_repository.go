package preferences

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL preferences repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a user's preferences.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Preferences, error) {
	query := `
		SELECT user_id, refresh_interval_ms, alert_threshold, alerts_enabled, weekly_reports, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`

	var (
		p          Preferences
		intervalMs int64
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&intervalMs,
		&p.AlertThreshold,
		&p.AlertsEnabled,
		&p.WeeklyReports,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.RefreshInterval = time.Duration(intervalMs) * time.Millisecond
	return &p, nil
}

// Save upserts a user's preferences.
func (r *PostgresRepository) Save(ctx context.Context, p *Preferences) error {
	query := `
		INSERT INTO user_preferences (user_id, refresh_interval_ms, alert_threshold, alerts_enabled, weekly_reports, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			refresh_interval_ms = EXCLUDED.refresh_interval_ms,
			alert_threshold = EXCLUDED.alert_threshold,
			alerts_enabled = EXCLUDED.alerts_enabled,
			weekly_reports = EXCLUDED.weekly_reports,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		p.UserID,
		p.RefreshInterval.Milliseconds(),
		p.AlertThreshold,
		p.AlertsEnabled,
		p.WeeklyReports,
		p.UpdatedAt,
	)
	return err
}

// Delete removes a user's preferences.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID)
	return err
}

var _ Repository = (*PostgresRepository)(nil)

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriscan/nutriscan/internal/domain/consent"
)

type ConsentsRepo struct {
	pool    *pgxpool.Pool
	metrics Metrics
}

func NewConsentsRepo(pool *pgxpool.Pool, metrics Metrics) *ConsentsRepo {
	return &ConsentsRepo{pool: pool, metrics: metrics}
}

func (r *ConsentsRepo) GetByUser(ctx context.Context, userID string) (consent.Consent, error) {
	var c consent.Consent
	var history []byte

	err := observe(r.metrics, "consents.get_by_user", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, user_id, essential, analytics, communications, research, history, created_at, updated_at
			 FROM consents
			 WHERE user_id = $1`,
			userID,
		).Scan(
			&c.ID, &c.UserID, &c.Essential, &c.Analytics, &c.Communications, &c.Research,
			&history, &c.CreatedAt, &c.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return consent.Consent{}, consent.ErrNotFound
		}

		return consent.Consent{}, err
	}

	if err := json.Unmarshal(history, &c.History); err != nil {
		return consent.Consent{}, err
	}

	return c, nil
}

// Upsert writes the whole record. There is exactly one consent row per user,
// created lazily on first access, so insert-or-update keeps the handler free
// of existence checks.
func (r *ConsentsRepo) Upsert(ctx context.Context, c consent.Consent) error {
	history, err := json.Marshal(c.History)

	if err != nil {
		return err
	}

	return observe(r.metrics, "consents.upsert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO consents (id, user_id, essential, analytics, communications, research, history, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			 ON CONFLICT (user_id) DO UPDATE
			 SET analytics = EXCLUDED.analytics,
			     communications = EXCLUDED.communications,
			     research = EXCLUDED.research,
			     history = EXCLUDED.history,
			     updated_at = NOW()`,
			c.ID, c.UserID, c.Essential, c.Analytics, c.Communications, c.Research,
			history, c.CreatedAt, c.UpdatedAt,
		)

		return err
	})
}

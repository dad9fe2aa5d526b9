// Package credstore provides [auth.CredentialStore] implementations: a
// PostgreSQL store for production and an in-memory store for tests and
// single-process development.
//
// Both stores also implement the administrative operations used by the
// gatewayd CLI and the daily usage reset job.
package credstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/postgres"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Schema creates the two tables the store reads. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
    id                      TEXT PRIMARY KEY,
    display_name            TEXT NOT NULL DEFAULT '',
    email                   TEXT NOT NULL DEFAULT '',
    role                    TEXT NOT NULL DEFAULT 'standard',
    tier                    TEXT NOT NULL DEFAULT 'trial',
    subscription_expires_at TIMESTAMPTZ,
    active                  BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS api_keys (
    id            TEXT PRIMARY KEY,
    secret_digest TEXT NOT NULL,
    principal_id  TEXT NOT NULL REFERENCES principals (id),
    permissions   TEXT[] NOT NULL DEFAULT '{}',
    rate_limit    BIGINT NOT NULL DEFAULT 0,
    usage_today   BIGINT NOT NULL DEFAULT 0,
    usage_total   BIGINT NOT NULL DEFAULT 0,
    last_used_at  TIMESTAMPTZ,
    expires_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    active        BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS api_keys_active_created ON api_keys (created_at, id) WHERE active;
`

const (
	selectPrincipal = `SELECT id, display_name, email, role, tier, subscription_expires_at, active
FROM principals WHERE id = $1`

	selectActiveKeys = `SELECT id, secret_digest, principal_id, permissions, rate_limit,
       usage_today, usage_total, last_used_at, expires_at, created_at, active
FROM api_keys WHERE active ORDER BY created_at, id LIMIT $1`

	incrementUsage = `UPDATE api_keys
SET usage_today = usage_today + 1, usage_total = usage_total + 1, last_used_at = $2
WHERE id = $1`

	resetDailyUsage = `UPDATE api_keys SET usage_today = 0 WHERE usage_today <> 0`

	insertKey = `INSERT INTO api_keys
    (id, secret_digest, principal_id, permissions, rate_limit, expires_at, created_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	revokeKey = `UPDATE api_keys SET active = FALSE WHERE id = $1 AND active`

	upsertPrincipal = `INSERT INTO principals
    (id, display_name, email, role, tier, subscription_expires_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    email = EXCLUDED.email,
    role = EXCLUDED.role,
    tier = EXCLUDED.tier,
    subscription_expires_at = EXCLUDED.subscription_expires_at,
    active = EXCLUDED.active`
)

// Postgres is a credential store over a [postgres.Client].
type Postgres struct {
	db    *postgres.Client
	clock auth.Clock
}

var _ auth.CredentialStore = (*Postgres)(nil)

// NewPostgres returns a store over db. A nil clock uses wall time for
// last-used stamps.
func NewPostgres(db *postgres.Client, clock auth.Clock) *Postgres {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &Postgres{db: db, clock: clock}
}

// EnsureSchema applies [Schema].
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func (s *Postgres) FindPrincipalByID(ctx context.Context, id string) (auth.Principal, error) {
	var (
		p          auth.Principal
		role, tier string
	)
	err := s.db.QueryRow(ctx, selectPrincipal, id).Scan(
		&p.ID, &p.DisplayName, &p.Email, &role, &tier, &p.SubscriptionExpiresAt, &p.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Principal{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Principal{}, postgres.WrapScanError(err, "credstore: failed to load principal")
	}
	p.Role, p.Tier = auth.Role(role), auth.Tier(tier)
	return p, nil
}

func (s *Postgres) FindActiveAPIKeys(ctx context.Context, limit int) ([]auth.APIKeyRecord, error) {
	rows, err := s.db.Query(ctx, selectActiveKeys, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []auth.APIKeyRecord
	for rows.Next() {
		var k auth.APIKeyRecord
		if err := rows.Scan(
			&k.ID, &k.SecretDigest, &k.PrincipalID, &k.Permissions, &k.RateLimit,
			&k.UsageToday, &k.UsageTotal, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.Active,
		); err != nil {
			return nil, postgres.WrapScanError(err, "credstore: failed to scan API key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.WrapScanError(err, "credstore: failed to read API keys")
	}
	return keys, nil
}

func (s *Postgres) IncrementAPIKeyUsage(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, incrementUsage, id, s.clock.Now().UTC())
	return err
}

// ResetDailyAPIKeyUsage zeroes every key's daily counter and returns
// how many keys changed.
func (s *Postgres) ResetDailyAPIKeyUsage(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, resetDailyUsage)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateAPIKey persists rec.
func (s *Postgres) CreateAPIKey(ctx context.Context, rec auth.APIKeyRecord) error {
	perms := rec.Permissions
	if perms == nil {
		perms = []string{}
	}
	_, err := s.db.Exec(ctx, insertKey,
		rec.ID, rec.SecretDigest, rec.PrincipalID, perms, rec.RateLimit,
		rec.ExpiresAt, rec.CreatedAt, rec.Active,
	)
	return err
}

// RevokeAPIKey deactivates key id. It fails with CodeValidation when no
// active key has that id.
func (s *Postgres) RevokeAPIKey(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, revokeKey, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gwerr.Newf(gwerr.CodeValidation, "credstore: no active API key %q", id)
	}
	return nil
}

// UpsertPrincipal inserts p or replaces the stored principal with the
// same id.
func (s *Postgres) UpsertPrincipal(ctx context.Context, p auth.Principal) error {
	_, err := s.db.Exec(ctx, upsertPrincipal,
		p.ID, p.DisplayName, p.Email, string(p.Role), string(p.Tier), p.SubscriptionExpiresAt, p.Active,
	)
	return err
}

// Health pings the database.
func (s *Postgres) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

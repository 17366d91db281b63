package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-kart/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "api key not found")
		}
		return nil, errors.Wrap(err, "find api key")
	}
	return &info, nil
}

// Upsert stores a key by its hash.
func (r *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) error {
	scopes := info.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertAPIKeySQL, info.ID, info.KeyHash, info.Name, scopes); err != nil {
		return errors.Wrapf(err, "upsert api key %q", info.ID)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgBlobRepository implementa cache.BlobStore sobre postgres. Es el unico
// estado durable que posee el nucleo: la cache de binarios de adjuntos.
type PgBlobRepository struct {
	pool *pgxpool.Pool
}

func NewPgBlobRepository(pool *pgxpool.Pool) *PgBlobRepository {
	return &PgBlobRepository{pool: pool}
}

func (r *PgBlobRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `
		SELECT content
		FROM blob_cache
		WHERE resource_key = $1
	`

	var content []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

func (r *PgBlobRepository) Put(ctx context.Context, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}

	const query = `
		INSERT INTO blob_cache (resource_key, content, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_key) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, key, data, time.Now().UTC())
	return err
}

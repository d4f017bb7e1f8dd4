package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ksurdhar/draft-editor-sub002/internal/app"
)

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// poolConfig translates app config into a pgx pool config.
func poolConfig(cfg app.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, err
	}
	if cfg.PGMaxConn > 0 {
		pc.MaxConns = int32(cfg.PGMaxConn)
	}
	return pc, nil
}

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// CreateDraft inserts an empty draft owned by userID
func (p *Postgres) CreateDraft(ctx context.Context, title, userID string) (Draft, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO drafts (title, body, version, created_by)
		VALUES ($1, ''::bytea, 0, $2)
		RETURNING id, title, body, version, created_by, created_at, updated_at
	`, title, userID)

	var d Draft
	if err := row.Scan(&d.ID, &d.Title, &d.Body, &d.Version, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// ListDrafts returns drafts sorted by last update
func (p *Postgres) ListDrafts(ctx context.Context, limit, offset int) ([]Draft, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, body, version, created_by, created_at, updated_at
		FROM drafts
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.Title, &d.Body, &d.Version, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDraft fetches a draft by ID
func (p *Postgres) GetDraft(ctx context.Context, id string) (Draft, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, title, body, version, created_by, created_at, updated_at
		FROM drafts
		WHERE id = $1
	`, id)

	var d Draft
	if err := row.Scan(&d.ID, &d.Title, &d.Body, &d.Version, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// SaveDraft replaces the draft body, bumps version and timestamp
func (p *Postgres) SaveDraft(ctx context.Context, id string, body []byte) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE drafts
		SET body = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, id, body)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("draft not found")
	}
	p.log.Info("draft.saved", "id", id, "bytes", len(body))
	return nil
}

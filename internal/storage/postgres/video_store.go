// Package postgres provides the Postgres-backed persistence gateway.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bilimath/crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool behind the video store.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// VideoStore upserts video records into Postgres, keyed by bvid.
type VideoStore struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed VideoStore using the provided config.
func New(ctx context.Context, cfg Config) (*VideoStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "videos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &VideoStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*VideoStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "videos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &VideoStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *VideoStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *VideoStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("video store is not configured")
	}
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the videos table and its indexes when absent.
func (s *VideoStore) EnsureSchema(ctx context.Context) error {
	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	bvid TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	up_name TEXT NOT NULL DEFAULT '',
	up_mid BIGINT NOT NULL DEFAULT 0,
	up_face TEXT NOT NULL DEFAULT '',
	pic_url TEXT NOT NULL DEFAULT '',
	view_count BIGINT NOT NULL DEFAULT 0,
	danmaku_count BIGINT NOT NULL DEFAULT 0,
	reply_count BIGINT NOT NULL DEFAULT 0,
	favorite_count BIGINT NOT NULL DEFAULT 0,
	duration_seconds BIGINT NOT NULL DEFAULT 0,
	published_at TIMESTAMPTZ,
	tags TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	phase TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	dry_goods_ratio DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS %[1]s_phase_idx ON %[1]s (phase);
CREATE INDEX IF NOT EXISTS %[1]s_subject_idx ON %[1]s (subject);
CREATE INDEX IF NOT EXISTS %[1]s_up_name_idx ON %[1]s (up_name);
CREATE INDEX IF NOT EXISTS %[1]s_published_at_idx ON %[1]s (published_at);
`, s.table)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertBatch writes all records in one transaction. On conflict the mutable
// metric and taxonomy fields are overwritten; bvid never changes. Any
// failure rolls back the whole batch.
func (s *VideoStore) UpsertBatch(ctx context.Context, records []crawler.VideoRecord) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("video store is not configured")
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	bvid, title, up_name, up_mid, up_face, pic_url,
	view_count, danmaku_count, reply_count, favorite_count,
	duration_seconds, published_at, tags,
	category, phase, subject, dry_goods_ratio
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
ON CONFLICT (bvid) DO UPDATE SET
	title = EXCLUDED.title,
	up_name = EXCLUDED.up_name,
	up_mid = EXCLUDED.up_mid,
	up_face = EXCLUDED.up_face,
	pic_url = EXCLUDED.pic_url,
	view_count = EXCLUDED.view_count,
	danmaku_count = EXCLUDED.danmaku_count,
	reply_count = EXCLUDED.reply_count,
	favorite_count = EXCLUDED.favorite_count,
	duration_seconds = EXCLUDED.duration_seconds,
	published_at = EXCLUDED.published_at,
	tags = EXCLUDED.tags,
	category = EXCLUDED.category,
	phase = EXCLUDED.phase,
	subject = EXCLUDED.subject,
	dry_goods_ratio = EXCLUDED.dry_goods_ratio`, s.table)

	var committed int64
	for _, record := range records {
		if record.Bvid == "" {
			return 0, fmt.Errorf("record bvid is required")
		}
		tag, err := tx.Exec(ctx, query,
			record.Bvid,
			record.Title,
			record.UpName,
			record.UpMid,
			record.UpFace,
			record.PicURL,
			record.ViewCount,
			record.DanmakuCount,
			record.ReplyCount,
			record.FavoriteCount,
			record.DurationSeconds,
			record.PublishedAt,
			record.Tags,
			record.Category,
			record.Phase,
			record.Subject,
			record.DryGoodsRatio,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert video %s: %w", record.Bvid, err)
		}
		committed += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}
	return committed, nil
}

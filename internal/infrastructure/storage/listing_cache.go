package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

const (
	cacheTable = "listing_cache"
	dayLayout  = time.DateOnly
)

const schema = `CREATE TABLE IF NOT EXISTS listing_cache (
	cache_key  TEXT PRIMARY KEY,
	fetched_on TEXT NOT NULL,
	payload    TEXT NOT NULL
)`

// ListingCache keeps one scanned listing per key for a single UTC day so that
// reruns on the same day skip the network. It works on Postgres and SQLite.
type ListingCache struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ListingCache = (*ListingCache)(nil)

// OpenListingCache opens the database named by dsn and ensures the table exists.
// postgres:// and postgresql:// DSNs use lib/pq; anything else is a SQLite path
// (an optional sqlite:// prefix is stripped, ":memory:" is allowed).
func OpenListingCache(ctx context.Context, dsn string) (*ListingCache, error) {
	driver, source, format := resolveDSN(dsn)
	if source == "" {
		return nil, fmt.Errorf("%w: listing cache dsn is empty", domain.ErrConfiguration)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	cache := NewListingCache(db, format)
	if err := cache.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

// NewListingCache wraps an open database. format must match the driver's placeholders.
func NewListingCache(db *sql.DB, format sq.PlaceholderFormat) *ListingCache {
	return &ListingCache{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

func resolveDSN(dsn string) (driver, source string, format sq.PlaceholderFormat) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", dsn, sq.Dollar
	}
	return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), sq.Question
}

func (c *ListingCache) migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s: %w", cacheTable, err)
	}
	return nil
}

// Get returns the listing stored for key on the given day.
func (c *ListingCache) Get(ctx context.Context, key string, day time.Time) ([]domain.Paper, bool, error) {
	if c == nil || c.db == nil {
		return nil, false, nil
	}

	query, args, err := c.builder.
		Select("payload").
		From(cacheTable).
		Where(sq.Eq{"cache_key": key, "fetched_on": day.UTC().Format(dayLayout)}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build select: %w", err)
	}

	var payload string
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query listing: %w", err)
	}

	var papers []domain.Paper
	if err := json.Unmarshal([]byte(payload), &papers); err != nil {
		return nil, false, fmt.Errorf("decode listing %s: %w", key, err)
	}
	return papers, true, nil
}

// Put upserts the listing for key, replacing whatever day was stored before.
func (c *ListingCache) Put(ctx context.Context, key string, day time.Time, papers []domain.Paper) error {
	if c == nil || c.db == nil {
		return nil
	}

	payload, err := json.Marshal(papers)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", key, err)
	}

	query, args, err := c.builder.
		Insert(cacheTable).
		Columns("cache_key", "fetched_on", "payload").
		Values(key, day.UTC().Format(dayLayout), string(payload)).
		Suffix("ON CONFLICT (cache_key) DO UPDATE SET fetched_on = EXCLUDED.fetched_on, payload = EXCLUDED.payload").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// Prune removes listings fetched before the given day and reports how many went.
func (c *ListingCache) Prune(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := c.builder.
		Delete(cacheTable).
		Where(sq.Lt{"fetched_on": before.UTC().Format(dayLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune listings: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database.
func (c *ListingCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

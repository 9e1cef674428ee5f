// Package terminal runs the license side of a point-of-sale terminal: a
// durable local cache of the activated license plus periodic re-validation
// against the license server.
package terminal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	cacheKeyLicense = "license_key"
	cacheKeyPayload = "license_payload"
)

// Cache persists the activated license across restarts using SQLite.
// The key and payload are always written and cleared together.
type Cache struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewCache opens (and if needed creates) the cache database in dataDir.
func NewCache(dataDir string, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "license.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	c := &Cache{
		db:     db,
		logger: logger.With().Str("component", "license_cache").Logger(),
	}

	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	c.logger.Debug().Str("path", dbPath).Msg("license cache initialized")
	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS license_cache (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Load returns the cached license key and payload, or ("", nil, nil) when the
// cache is empty. A stored key with an unreadable payload clears the cache
// rather than reviving half a state.
func (c *Cache) Load(ctx context.Context) (string, *license.License, error) {
	key, err := c.get(ctx, cacheKeyLicense)
	if err != nil {
		return "", nil, err
	}
	if key == "" {
		return "", nil, nil
	}

	payload, err := c.get(ctx, cacheKeyPayload)
	if err != nil {
		return "", nil, err
	}

	var lic license.License
	if payload == "" || json.Unmarshal([]byte(payload), &lic) != nil {
		c.logger.Warn().Msg("cached license payload unreadable, clearing cache")
		if err := c.Clear(ctx); err != nil {
			return "", nil, err
		}
		return "", nil, nil
	}

	return key, &lic, nil
}

// Store saves the license key and payload in a single transaction.
func (c *Cache) Store(ctx context.Context, key string, lic *license.License) error {
	payload, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("marshal license: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO license_cache (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert, cacheKeyLicense, key); err != nil {
		return fmt.Errorf("store license key: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, cacheKeyPayload, string(payload)); err != nil {
		return fmt.Errorf("store license payload: %w", err)
	}

	return tx.Commit()
}

// Clear removes both cache entries in a single transaction.
func (c *Cache) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM license_cache WHERE key IN (?, ?)`, cacheKeyLicense, cacheKeyPayload); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM license_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cache key %s: %w", key, err)
	}
	return value, nil
}

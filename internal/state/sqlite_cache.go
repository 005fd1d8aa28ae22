package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// LoadCache returns the stored entries recorded under fingerprint. Entries
// written for another rule set are ignored, so a changed configuration
// yields an empty cache. The cache is complete only when the last saved
// cache was complete for the same fingerprint.
func (s *SQLiteStore) LoadCache(fingerprint string) (*engine.Cache, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT path, hash, findings FROM content_hashes WHERE fingerprint = ? ORDER BY path`,
		fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cache := engine.NewCache(fingerprint)
	dropped := false
	for rows.Next() {
		var path, hash, raw string
		if err := rows.Scan(&path, &hash, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		var findings []core.Finding
		if err := json.Unmarshal([]byte(raw), &findings); err != nil {
			// a corrupt row only costs a re-evaluation
			s.logger.Warn("dropping unreadable cache entry", "path", path, "error", err)
			dropped = true
			continue
		}
		cache.Entries[path] = engine.CacheEntry{Hash: hash, Findings: findings}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	var complete bool
	err = s.db.QueryRow(
		`SELECT complete FROM cache_state WHERE id = 1 AND fingerprint = ?`,
		fingerprint,
	).Scan(&complete)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load cache state: %w", err)
	}
	// a dropped row leaves a hole in the working set
	cache.Complete = complete && !dropped

	s.logger.Debug("cache loaded", "fingerprint", fingerprint, "entries", cache.Len(), "complete", cache.Complete)
	return cache, nil
}

// SaveCache replaces the stored cache with cache in one transaction.
func (s *SQLiteStore) SaveCache(cache *engine.Cache) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if cache == nil {
		return fmt.Errorf("cache is nil")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM content_hashes`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO content_hashes (path, hash, fingerprint, findings, updated_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, path := range cache.Paths() {
		entry := cache.Entries[path]
		findings := entry.Findings
		if findings == nil {
			findings = []core.Finding{}
		}
		raw, err := json.Marshal(findings)
		if err != nil {
			return fmt.Errorf("failed to encode findings for %s: %w", path, err)
		}
		if _, err := stmt.Exec(path, entry.Hash, cache.Fingerprint, string(raw), now); err != nil {
			return fmt.Errorf("failed to store cache entry for %s: %w", path, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO cache_state (id, fingerprint, complete, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint, complete = excluded.complete, updated_at = excluded.updated_at`,
		cache.Fingerprint, cache.Complete, now,
	); err != nil {
		return fmt.Errorf("failed to store cache state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}
	s.logger.Debug("cache saved", "fingerprint", cache.Fingerprint, "entries", cache.Len())
	return nil
}

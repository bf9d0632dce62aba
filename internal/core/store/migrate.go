package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS crawl_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization TEXT NOT NULL,
		form_name TEXT NOT NULL,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		version TEXT,
		strategy TEXT,
		lookup_id TEXT,
		tool_version TEXT,
		resolved_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		UNIQUE(organization, form_name)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_cache_expires ON crawl_cache(expires_at);`,
	`CREATE TABLE IF NOT EXISTS advisor_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		state TEXT NOT NULL,
		prompt_kind TEXT NOT NULL,
		model TEXT NOT NULL,
		response_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		UNIQUE(state, prompt_kind, model)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_advisor_cache_expires ON advisor_cache(expires_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formscout/formscout/internal/core"
)

// GetCachedResult returns a cached lookup if it has not expired.
func (s *Store) GetCachedResult(ctx context.Context, organization, formName string) (*core.CrawlResult, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	organization = strings.TrimSpace(organization)
	formKey := normalizeKey(formName)
	if organization == "" || formKey == "" {
		return nil, errors.New("cache organization and form are required")
	}

	var (
		url         string
		source      string
		version     sql.NullString
		strategy    sql.NullString
		lookupID    sql.NullString
		toolVersion sql.NullString
		resolvedAt  int64
		expiresAt   int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT url, source, version, strategy, lookup_id, tool_version, resolved_at, expires_at
		FROM crawl_cache
		WHERE organization = ? AND form_name = ? AND expires_at > ?
	`, organization, formKey, s.now().Unix())

	if err := row.Scan(&url, &source, &version, &strategy, &lookupID, &toolVersion, &resolvedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached result: %w", err)
	}

	resolved := time.Unix(resolvedAt, 0).UTC()
	expires := time.Unix(expiresAt, 0).UTC()

	return &core.CrawlResult{
		FormName: strings.TrimSpace(formName),
		URL:      url,
		Source:   source,
		Version:  version.String,
		Strategy: core.Strategy(strategy.String),
		IsValid:  true,
		Provenance: core.Provenance{
			LookupID:       lookupID.String,
			RequestedAt:    s.now(),
			ResolvedAt:     resolved,
			Provider:       source,
			FromCache:      true,
			CacheExpiresAt: &expires,
			ToolVersion:    toolVersion.String,
		},
	}, nil
}

// SetCachedResult stores a validated lookup with a TTL.
func (s *Store) SetCachedResult(ctx context.Context, organization, formName string, result *core.CrawlResult, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if ttl <= 0 || result == nil || !result.IsValid {
		return nil
	}

	organization = strings.TrimSpace(organization)
	formKey := normalizeKey(formName)
	if organization == "" || formKey == "" {
		return errors.New("cache organization and form are required")
	}

	resolved := result.Provenance.ResolvedAt
	if resolved.IsZero() {
		resolved = s.now()
	}
	expires := s.now().Add(ttl)

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO crawl_cache (organization, form_name, url, source, version, strategy, lookup_id, tool_version, resolved_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization, form_name) DO UPDATE SET
			url = excluded.url,
			source = excluded.source,
			version = excluded.version,
			strategy = excluded.strategy,
			lookup_id = excluded.lookup_id,
			tool_version = excluded.tool_version,
			resolved_at = excluded.resolved_at,
			expires_at = excluded.expires_at
	`, organization, formKey, result.URL, result.Source, result.Version, string(result.Strategy),
		result.Provenance.LookupID, result.Provenance.ToolVersion, resolved.UTC().Unix(), expires.Unix())
	if err != nil {
		return fmt.Errorf("store cached result: %w", err)
	}

	return nil
}

// PurgeCache deletes cached lookups. With expiredOnly set, live entries are kept.
// It returns the number of rows removed across both caches.
func (s *Store) PurgeCache(ctx context.Context, expiredOnly bool) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var total int64
	for _, table := range []string{"crawl_cache", "advisor_cache"} {
		query := "DELETE FROM " + table // #nosec G202 -- table names are constants
		args := []any{}
		if expiredOnly {
			query += " WHERE expires_at <= ?"
			args = append(args, s.now().Unix())
		}
		res, err := s.DB.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	return total, nil
}

// CountCachedResults returns the number of unexpired cached lookups.
func (s *Store) CountCachedResults(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM crawl_cache WHERE expires_at > ?`, s.now().Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached results: %w", err)
	}
	return count, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// AdvisorCacheEntry is a cached advisor response.
type AdvisorCacheEntry struct {
	ResponseJSON string
	ExpiresAt    time.Time
}

// GetAdvisorCache returns a cached advisor response if present and not expired.
func (s *Store) GetAdvisorCache(ctx context.Context, state, promptKind, model string) (*AdvisorCacheEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT response_json, expires_at FROM advisor_cache
		 WHERE state = ? AND prompt_kind = ? AND model = ?`,
		normalizeKey(state), promptKind, model,
	)

	var (
		response string
		expires  int64
	)
	if err := row.Scan(&response, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	expiresAt := time.Unix(expires, 0).UTC()
	if !s.now().Before(expiresAt) {
		return nil, nil
	}

	return &AdvisorCacheEntry{ResponseJSON: response, ExpiresAt: expiresAt}, nil
}

// SetAdvisorCache stores an advisor response with TTL.
func (s *Store) SetAdvisorCache(ctx context.Context, state, promptKind, model, responseJSON string, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO advisor_cache (state, prompt_kind, model, response_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(state, prompt_kind, model)
		 DO UPDATE SET response_json = excluded.response_json,
		               created_at = excluded.created_at,
		               expires_at = excluded.expires_at`,
		normalizeKey(state), promptKind, model, responseJSON, now.Unix(), expiresAt.Unix(),
	)
	return err
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// GetAdvisorResponse adapts GetAdvisorCache to the advisor's cache contract.
func (s *Store) GetAdvisorResponse(ctx context.Context, state, promptKey, model string) (string, bool, error) {
	entry, err := s.GetAdvisorCache(ctx, state, promptKey, model)
	if err != nil || entry == nil {
		return "", false, err
	}
	return entry.ResponseJSON, true, nil
}

// SetAdvisorResponse adapts SetAdvisorCache to the advisor's cache contract.
func (s *Store) SetAdvisorResponse(ctx context.Context, state, promptKey, model, response string, ttl time.Duration) error {
	return s.SetAdvisorCache(ctx, state, promptKey, model, response, ttl)
}

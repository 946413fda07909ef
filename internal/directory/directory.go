// Package directory resolves human-entered assignee identifiers against a
// cached copy of the platform's user directory.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leadrouting_backend/internal/board"
	"leadrouting_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "board:user_directory"

// ResolutionError is returned when an identifier matches zero or more than
// one platform user. It aborts an apply.
type ResolutionError struct {
	Identifier string
	Matches    int
}

func (e *ResolutionError) Error() string {
	if e.Identifier == "" {
		return "assignee identifier is empty"
	}
	if e.Matches == 0 {
		return fmt.Sprintf("no platform user matches %q", e.Identifier)
	}
	return fmt.Sprintf("%d platform users match %q", e.Matches, e.Identifier)
}

// Source lists users from the platform.
type Source interface {
	ListUsers(ctx context.Context) ([]board.User, error)
}

// Resolver maps identifiers to canonical platform person IDs. The user list
// is cached in redis; a cache miss or redis outage falls back to the source.
type Resolver struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewResolver creates a resolver. cache may be nil, which disables caching.
func NewResolver(source Source, cache *redis.Client, ttl time.Duration, log *logger.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{source: source, cache: cache, ttl: ttl, log: log}
}

// Resolve turns a numeric ID, email address, or exact display name into the
// platform's canonical person ID. Empty, unknown, and ambiguous identifiers
// return a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return "", &ResolutionError{}
	}

	users, err := r.users(ctx)
	if err != nil {
		return "", fmt.Errorf("load user directory: %w", err)
	}

	var matches []board.User
	switch {
	case isNumeric(trimmed):
		for _, u := range users {
			if u.ID == trimmed {
				matches = append(matches, u)
			}
		}
	case strings.Contains(trimmed, "@"):
		for _, u := range users {
			if strings.EqualFold(u.Email, trimmed) {
				matches = append(matches, u)
			}
		}
	default:
		for _, u := range users {
			if strings.EqualFold(strings.TrimSpace(u.Name), trimmed) {
				matches = append(matches, u)
			}
		}
	}

	if len(matches) != 1 {
		return "", &ResolutionError{Identifier: trimmed, Matches: len(matches)}
	}
	return matches[0].ID, nil
}

func (r *Resolver) users(ctx context.Context) ([]board.User, error) {
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var cached []board.User
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil && r.log != nil {
			r.log.Warn("user directory cache read failed", "error", err)
		}
	}

	users, err := r.source.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if raw, jsonErr := json.Marshal(users); jsonErr == nil {
			if err := r.cache.Set(ctx, cacheKey, raw, r.ttl).Err(); err != nil && r.log != nil {
				r.log.Warn("user directory cache write failed", "error", err)
			}
		}
	}
	return users, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

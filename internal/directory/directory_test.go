package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadrouting_backend/internal/board"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	users []board.User
	calls int
	err   error
}

func (f *fakeSource) ListUsers(ctx context.Context) ([]board.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.users, nil
}

func testUsers() []board.User {
	return []board.User{
		{ID: "101", Name: "Alice Miller", Email: "alice@example.com"},
		{ID: "102", Name: "Bob Stone", Email: "bob@example.com"},
		{ID: "103", Name: "Bob Stone", Email: "bob.stone@example.com"},
	}
}

func TestResolveIdentifierKinds(t *testing.T) {
	r := NewResolver(&fakeSource{users: testUsers()}, nil, time.Minute, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		identifier string
		want       string
	}{
		{"numeric id", "101", "101"},
		{"email", "alice@example.com", "101"},
		{"email case insensitive", "ALICE@Example.COM", "101"},
		{"display name", "Alice Miller", "101"},
		{"name case insensitive", "alice miller", "101"},
		{"name with padding", "  Alice Miller  ", "101"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tc.identifier)
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.identifier, err)
			}
			if got != tc.want {
				t.Fatalf("resolve %q = %s, want %s", tc.identifier, got, tc.want)
			}
		})
	}
}

func TestResolveFailuresReturnResolutionError(t *testing.T) {
	r := NewResolver(&fakeSource{users: testUsers()}, nil, time.Minute, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		identifier string
		matches    int
	}{
		{"empty", "", 0},
		{"unknown email", "nobody@example.com", 0},
		{"unknown id", "999", 0},
		{"ambiguous name", "Bob Stone", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tc.identifier)
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("err = %v, want *ResolutionError", err)
			}
			if resErr.Matches != tc.matches {
				t.Fatalf("matches = %d, want %d", resErr.Matches, tc.matches)
			}
		})
	}
}

func TestResolveCachesDirectory(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	src := &fakeSource{users: testUsers()}
	r := NewResolver(src, cache, time.Minute, nil)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "101"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1 (second hit served from cache)", src.calls)
	}

	// Expired cache falls back to the source.
	mr.FastForward(2 * time.Minute)
	if _, err := r.Resolve(ctx, "101"); err != nil {
		t.Fatalf("post-expiry resolve: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("source calls = %d, want 2 after cache expiry", src.calls)
	}
}

func TestResolveSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	src := &fakeSource{users: testUsers()}
	r := NewResolver(src, cache, time.Minute, nil)

	got, err := r.Resolve(context.Background(), "102")
	if err != nil {
		t.Fatalf("resolve with dead cache: %v", err)
	}
	if got != "102" || src.calls != 1 {
		t.Fatalf("got %s, calls %d", got, src.calls)
	}
}

func TestResolveSourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("platform down")}
	r := NewResolver(src, nil, time.Minute, nil)

	_, err := r.Resolve(context.Background(), "101")
	if err == nil {
		t.Fatal("expected error")
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		t.Fatal("a source failure is not a resolution failure")
	}
}

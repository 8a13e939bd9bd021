// Package oauth stores an extension's OAuth credential and refreshes it on
// demand. Reads and refreshes are serialised so concurrent fetches never
// trigger two refreshes.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/kv"
)

var (
	// ErrNoToken is returned when nothing has been stored yet.
	ErrNoToken = errors.New("oauth: not signed in")
	// ErrExpired is returned for an expired token that cannot be refreshed.
	ErrExpired = errors.New("oauth: token expired")
)

const defaultSkew = 30 * time.Second

// Token is a stored credential.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Expiry returns ExpiresAt, falling back to the exp claim when the access
// token is a JWT. The zero time means the token never expires.
func (t Token) Expiry() time.Time {
	if !t.ExpiresAt.IsZero() {
		return t.ExpiresAt
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Expired reports whether the token expires within skew of now.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	exp := t.Expiry()
	return !exp.IsZero() && !now.Add(skew).Before(exp)
}

// RefreshFunc exchanges an expired token for a new one.
type RefreshFunc func(ctx context.Context, old Token) (Token, error)

// Store keeps one Token in a kv.Store.
type Store struct {
	mu      sync.Mutex
	kv      kv.Store
	key     string
	refresh RefreshFunc
	clock   cache.Clock
	skew    time.Duration
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRefresh enables refreshing expired tokens.
func WithRefresh(fn RefreshFunc) Option {
	return func(s *Store) { s.refresh = fn }
}

// WithClock replaces the wall clock.
func WithClock(c cache.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSkew sets how long before expiry a token is treated as expired.
func WithSkew(d time.Duration) Option {
	return func(s *Store) { s.skew = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store persisting its token under key.
func NewStore(store kv.Store, key string, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		key:    key,
		clock:  cache.SystemClock{},
		skew:   defaultSkew,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a valid token, refreshing it first when expired.
func (s *Store) Token(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok, err := kv.GetJSON[Token](ctx, s.kv, s.key)
	if err != nil {
		return Token{}, fmt.Errorf("reading token: %w", err)
	}
	if !ok || tok.AccessToken == "" {
		return Token{}, ErrNoToken
	}
	if !tok.Expired(s.clock.Now(), s.skew) {
		return tok, nil
	}
	if s.refresh == nil || tok.RefreshToken == "" {
		return Token{}, ErrExpired
	}

	s.logger.Debug("refreshing oauth token", "key", s.key)
	fresh, err := s.refresh(ctx, tok)
	if err != nil {
		return Token{}, fmt.Errorf("refreshing token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := kv.SetJSON(ctx, s.kv, s.key, fresh); err != nil {
		return Token{}, fmt.Errorf("saving token: %w", err)
	}
	return fresh, nil
}

// AccessToken returns the bearer string. It satisfies fetch.TokenSource.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Set stores tok, replacing any previous token.
func (s *Store) Set(ctx context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return kv.SetJSON(ctx, s.kv, s.key, tok)
}

// Clear signs out.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, s.key)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chamapay/monitoring"
)

// safetyMargin is subtracted from the provider-reported TTL before the
// expiry is persisted, so a token is never handed out moments before the
// provider stops honoring it.
const safetyMargin = 60 * time.Second

// TokenStore persists the single "current" credential slot.
type TokenStore interface {
	// CurrentToken returns the cached token, or an empty token when the
	// slot has never been written.
	CurrentToken(ctx context.Context) (accessToken string, expiresAt time.Time, err error)
	SaveToken(ctx context.Context, accessToken string, expiresAt time.Time) error
}

// Authenticator performs the provider credential exchange.
type Authenticator interface {
	Authenticate(ctx context.Context) (accessToken string, ttl time.Duration, err error)
}

// TokenCache hands out a valid provider access token, refreshing it through
// the store-backed "current" slot when the cached one is expired. The store
// upsert is last-write-wins; concurrent refresh across processes is
// tolerated since any unexpired token is interchangeable. The mutex only
// coalesces refreshes within this process.
type TokenCache struct {
	mu     sync.Mutex
	store  TokenStore
	client Authenticator
}

func NewTokenCache(store TokenStore, client Authenticator) *TokenCache {
	return &TokenCache{
		store:  store,
		client: client,
	}
}

// Acquire returns a token that is valid for at least the safety margin.
func (t *TokenCache) Acquire(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	token, expiresAt, err := t.store.CurrentToken(ctx)
	if err != nil {
		slog.Warn("tokenCache: read current token", "error", err)
	} else if token != "" && time.Now().Before(expiresAt) {
		return token, nil
	}

	accessToken, ttl, err := t.client.Authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("tokenCache: %w", err)
	}
	monitoring.TrackTokenRefresh()

	expiresAt = time.Now().Add(ttl - safetyMargin)
	if err := t.store.SaveToken(ctx, accessToken, expiresAt); err != nil {
		// the exchanged token is still good for this caller
		slog.Warn("tokenCache: persist token", "error", err)
	}

	return accessToken, nil
}

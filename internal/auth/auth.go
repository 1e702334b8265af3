// Package auth maps inbound API keys to broker credentials. Keys live
// in Redis so multiple gateway instances share one credential store and
// revocation takes effect immediately.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ErrInvalidKey is returned for unknown or revoked API keys. Callers
// reject the request before any validation or audit work happens.
var ErrInvalidKey = errors.New("invalid api key")

// Credentials is what a verified API key unlocks.
type Credentials struct {
	Owner       string // account the key belongs to
	Broker      string // registry name, e.g. "angel", "paper"
	AuthToken   string // broker session token passed to the adapter
	TradingMode string // "auto" or "semi"; empty means auto
}

// Store verifies API keys against Redis.
type Store struct {
	client *goredis.Client
}

// Config configures the credential store.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[auth] connected to %s", cfg.Addr)
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client. Used when the gateway shares
// one Redis connection across stores.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func keyFor(apiKey string) string { return "apikey:" + apiKey }
func ownerKey(owner string) string { return "owner:" + owner }

// Verify resolves an API key to its credentials. An unknown key is a
// normal outcome and returns ErrInvalidKey, not an infrastructure
// error.
func (s *Store) Verify(ctx context.Context, apiKey string) (Credentials, error) {
	if apiKey == "" {
		return Credentials{}, ErrInvalidKey
	}

	vals, err := s.client.HGetAll(ctx, keyFor(apiKey)).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("auth lookup: %w", err)
	}
	if len(vals) == 0 || vals["broker"] == "" {
		return Credentials{}, ErrInvalidKey
	}

	return Credentials{
		Owner:       vals["owner"],
		Broker:      vals["broker"],
		AuthToken:   vals["auth_token"],
		TradingMode: vals["trading_mode"],
	}, nil
}

// ByOwner resolves an account owner to its credentials. The approval
// executor uses this: parked payloads are credential-stripped, so the
// broker session is re-fetched at execution time.
func (s *Store) ByOwner(ctx context.Context, owner string) (Credentials, error) {
	vals, err := s.client.HGetAll(ctx, ownerKey(owner)).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("auth owner lookup: %w", err)
	}
	if len(vals) == 0 || vals["broker"] == "" {
		return Credentials{}, ErrInvalidKey
	}
	return Credentials{
		Owner:       owner,
		Broker:      vals["broker"],
		AuthToken:   vals["auth_token"],
		TradingMode: vals["trading_mode"],
	}, nil
}

// Put stores or replaces a key's credentials, indexed both by API key
// and by owner. Session refresh jobs call this after a broker login.
func (s *Store) Put(ctx context.Context, apiKey string, c Credentials) error {
	fields := map[string]interface{}{
		"owner":        c.Owner,
		"broker":       c.Broker,
		"auth_token":   c.AuthToken,
		"trading_mode": c.TradingMode,
	}
	if err := s.client.HSet(ctx, keyFor(apiKey), fields).Err(); err != nil {
		return err
	}
	return s.client.HSet(ctx, ownerKey(c.Owner), fields).Err()
}

// Revoke deletes a key. Subsequent Verify calls fail with
// ErrInvalidKey.
func (s *Store) Revoke(ctx context.Context, apiKey string) error {
	return s.client.Del(ctx, keyFor(apiKey)).Err()
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

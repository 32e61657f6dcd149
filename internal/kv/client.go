// Package kv defines the typed key-value/log/pub-sub contract (spec §4.1,
// component C1) and two implementations: a go-redis-backed client for
// production and an in-memory client for tests, mirroring the split the
// teacher draws between its Redis-fanout comment and its in-process
// PresenceStore.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound names the missing-key condition. Get does not return it: both
// implementations report a missing or expired key as a nil byte slice with a
// nil error.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one record read back from a log.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Handler processes one pub/sub message. It runs on a background delivery
// goroutine; a panic or error inside it must not tear down the subscription
// it came from (spec §4.1, §5 "BusDeliveryError").
type Handler func(channel string, payload []byte)

// Client is the C1 contract. Implementations must be safe for concurrent
// use from many goroutines.
type Client interface {
	// Typed KV operations. Values are raw bytes in both directions: the
	// client does no JSON encoding on write and no JSON decoding on read,
	// so any JSON round-trip is the caller's responsibility.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string][]byte) error

	// Log operations (Redis Streams in the production implementation).
	Append(ctx context.Context, logKey string, fields map[string]string) (string, error)
	ReadLog(ctx context.Context, logKey, afterID string, count int64) ([]Entry, error)
	CreateGroup(ctx context.Context, logKey, group, startID string) error
	ReadGroup(ctx context.Context, logKey, group, consumer string, count int64, block time.Duration) ([]Entry, error)
	Ack(ctx context.Context, logKey, group, id string) error
	Trim(ctx context.Context, logKey string, maxLen int64) error

	// Pub/sub operations.
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, h Handler) (unsubscribe func(), err error)
	PSubscribe(ctx context.Context, pattern string, h Handler) (unsubscribe func(), err error)

	// Ready blocks until the backing connections have been pinged
	// successfully, or the context expires.
	Ready(ctx context.Context) error

	// Close quits every underlying connection. Pending acks are abandoned.
	Close() error
}

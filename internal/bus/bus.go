// Package bus is the C7 bus dispatcher (spec §4.7): it pattern-subscribes
// to the three outbound channel shapes published by C5/gateway and forwards
// each message to the matching room or user's socket set on this instance.
package bus

import (
	"context"
	"errors"
	"strings"
	"time"

	"familytether/internal/kv"
	"familytether/internal/logging"
)

// Sink is the subset of gateway.Server the dispatcher forwards into.
// Accepting an interface here (rather than importing internal/gateway
// directly) keeps the bus package testable without a live socket registry.
type Sink interface {
	BroadcastRoom(familyID string, payload []byte)
	SendToUser(userID string, payload []byte)
}

const (
	locationPattern    = "family:*:location"
	alertsPattern      = "family:*:alerts"
	notificationsPattern = "user:*:notifications"
)

// Dispatcher owns the three pattern subscriptions and their lifetime.
type Dispatcher struct {
	kv   kv.Client
	sink Sink

	cancelFns []func()
}

// New builds a Dispatcher. Call Start to subscribe.
func New(client kv.Client, sink Sink) *Dispatcher {
	return &Dispatcher{kv: client, sink: sink}
}

// Start subscribes all three patterns, retrying each with exponential
// backoff (grounded in the same reconnect-on-drop posture the redis.PubSub
// layer already provides per-connection) until ctx is cancelled or the
// initial subscribe succeeds. It returns once all three are live.
func (d *Dispatcher) Start(ctx context.Context) error {
	subs := []struct {
		pattern string
		handler kv.Handler
	}{
		{locationPattern, d.onLocationOrAlert},
		{alertsPattern, d.onLocationOrAlert},
		{notificationsPattern, d.onNotification},
	}

	for _, s := range subs {
		unsubscribe, err := d.subscribeWithBackoff(ctx, s.pattern, s.handler)
		if err != nil {
			d.Close()
			return err
		}
		d.cancelFns = append(d.cancelFns, unsubscribe)
	}
	return nil
}

func (d *Dispatcher) subscribeWithBackoff(ctx context.Context, pattern string, h kv.Handler) (func(), error) {
	const (
		initialDelay = time.Second
		maxDelay     = 30 * time.Second
	)
	delay := initialDelay
	for {
		unsubscribe, err := d.kv.PSubscribe(ctx, pattern, h)
		if err == nil {
			return unsubscribe, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logging.Log.WithError(err).WithField("pattern", pattern).
			Warn("bus: subscribe failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Close unsubscribes all three patterns.
func (d *Dispatcher) Close() {
	for _, cancel := range d.cancelFns {
		cancel()
	}
	d.cancelFns = nil
}

// onLocationOrAlert handles family:<fid>:location and family:<fid>:alerts,
// routing by room. Channel parsing is literal on all segments but the
// middle one, matching the single-wildcard-per-segment pattern semantics.
func (d *Dispatcher) onLocationOrAlert(channel string, payload []byte) {
	familyID, ok := extractSegment(channel, "family", 3)
	if !ok {
		return
	}
	d.sink.BroadcastRoom(familyID, payload)
}

// onNotification handles user:<uid>:notifications, routing to every socket
// of that user.
func (d *Dispatcher) onNotification(channel string, payload []byte) {
	userID, ok := extractSegment(channel, "user", 3)
	if !ok {
		return
	}
	d.sink.SendToUser(userID, payload)
}

// extractSegment pulls the middle ":"-delimited segment out of a channel
// name shaped like "<prefix>:<id>:<suffix>", verifying the expected segment
// count and prefix.
func extractSegment(channel, prefix string, wantSegments int) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != wantSegments || parts[0] != prefix {
		return "", false
	}
	return parts[1], true
}

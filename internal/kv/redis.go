package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"familytether/internal/concurrency"
	"familytether/internal/logging"
)

// redisClient is the production C1 implementation. It opens three
// independent connections, as mandated by spec §9: one for general
// commands, one for publishing, one for subscribing, since pub/sub
// connections cannot interleave with regular Redis commands.
type redisClient struct {
	cmd *redis.Client
	pub *redis.Client
	sub *redis.Client

	mu       sync.Mutex
	channels map[string]*subscription
	patterns map[string]*subscription
}

type subscription struct {
	ps       *redis.PubSub
	handlers map[int]Handler
	nextID   int
	cancel   context.CancelFunc
}

// NewRedis builds a C1 client from a redis:// connection string (spec §6,
// REDIS_URL).
func NewRedis(redisURL string) (Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 30 * time.Second
	opts.MaxRetries = 3

	return &redisClient{
		cmd:      redis.NewClient(opts),
		pub:      redis.NewClient(opts),
		sub:      redis.NewClient(opts),
		channels: make(map[string]*subscription),
		patterns: make(map[string]*subscription),
	}, nil
}

func (c *redisClient) Ready(ctx context.Context) error {
	for _, conn := range []*redis.Client{c.cmd, c.pub, c.sub} {
		if err := conn.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("kv: readiness ping failed: %w", err)
		}
	}
	return nil
}

func (c *redisClient) Close() error {
	c.mu.Lock()
	for _, s := range c.channels {
		s.cancel()
		_ = s.ps.Close()
	}
	for _, s := range c.patterns {
		s.cancel()
		_ = s.ps.Close()
	}
	c.mu.Unlock()

	errCmd := c.cmd.Close()
	errPub := c.pub.Close()
	errSub := c.sub.Close()
	return errors.Join(errCmd, errPub, errSub)
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := c.cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.cmd.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (c *redisClient) Del(ctx context.Context, key string) error {
	if err := c.cmd.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: del %s: %w", key, err)
	}
	return nil
}

func (c *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.cmd.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: incr %s: %w", key, err)
	}
	return n, nil
}

func (c *redisClient) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	vals, err := c.cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: mget: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		s, ok := vals[i].(string)
		if !ok {
			continue
		}
		out[k] = []byte(s)
	}
	return out, nil
}

func (c *redisClient) MSet(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	if err := c.cmd.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("kv: mset: %w", err)
	}
	return nil
}

func (c *redisClient) Append(ctx context.Context, logKey string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := c.cmd.XAdd(ctx, &redis.XAddArgs{Stream: logKey, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("kv: append %s: %w", logKey, err)
	}
	return id, nil
}

func (c *redisClient) ReadLog(ctx context.Context, logKey, afterID string, count int64) ([]Entry, error) {
	start := "-"
	if afterID != "" && afterID != "-" {
		start = "(" + afterID
	}
	res, err := c.cmd.XRangeN(ctx, logKey, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: read_log %s: %w", logKey, err)
	}
	return toEntries(res), nil
}

func (c *redisClient) CreateGroup(ctx context.Context, logKey, group, startID string) error {
	if startID == "" {
		startID = "$"
	}
	err := c.cmd.XGroupCreateMkStream(ctx, logKey, group, startID).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("kv: create_group %s/%s: %w", logKey, group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (c *redisClient) ReadGroup(ctx context.Context, logKey, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	res, err := c.cmd.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{logKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read_group %s/%s: %w", logKey, group, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return toEntries(res[0].Messages), nil
}

func (c *redisClient) Ack(ctx context.Context, logKey, group, id string) error {
	if err := c.cmd.XAck(ctx, logKey, group, id).Err(); err != nil {
		return fmt.Errorf("kv: ack %s/%s/%s: %w", logKey, group, id, err)
	}
	return nil
}

func (c *redisClient) Trim(ctx context.Context, logKey string, maxLen int64) error {
	if err := c.cmd.XTrimMaxLenApprox(ctx, logKey, maxLen, maxLen/10).Err(); err != nil {
		return fmt.Errorf("kv: trim %s: %w", logKey, err)
	}
	return nil
}

func (c *redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.pub.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("kv: publish %s: %w", channel, err)
	}
	return nil
}

func (c *redisClient) Subscribe(ctx context.Context, channel string, h Handler) (func(), error) {
	return c.addHandler(c.channels, channel, h, func() *redis.PubSub {
		return c.sub.Subscribe(context.Background(), channel)
	})
}

func (c *redisClient) PSubscribe(ctx context.Context, pattern string, h Handler) (func(), error) {
	return c.addHandler(c.patterns, pattern, h, func() *redis.PubSub {
		return c.sub.PSubscribe(context.Background(), pattern)
	})
}

func (c *redisClient) addHandler(bucket map[string]*subscription, key string, h Handler, open func() *redis.PubSub) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := bucket[key]
	if !ok {
		ps := open()
		if _, err := ps.Receive(context.Background()); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("kv: subscribe %s: %w", key, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		sub = &subscription{ps: ps, handlers: make(map[int]Handler), cancel: cancel}
		bucket[key] = sub
		concurrency.GoSafe(func() { c.deliver(ctx, sub) })
	}
	id := sub.nextID
	sub.nextID++
	sub.handlers[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(sub.handlers, id)
		if len(sub.handlers) == 0 {
			sub.cancel()
			_ = sub.ps.Close()
			delete(bucket, key)
		}
	}, nil
}

// deliver reads messages off one PubSub until its context is cancelled,
// copying out the handler set before invoking any handler so a slow or
// mutating handler can't deadlock the subscription (spec §5).
func (c *redisClient) deliver(ctx context.Context, sub *subscription) {
	ch := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.mu.Lock()
			handlers := make([]Handler, 0, len(sub.handlers))
			for _, h := range sub.handlers {
				handlers = append(handlers, h)
			}
			c.mu.Unlock()

			payload := []byte(msg.Payload)
			for _, h := range handlers {
				dispatch(msg.Channel, payload, h)
			}
		}
	}
}

// dispatch invokes one handler with panic/error containment: a broken
// subscriber must not tear down others (spec §7, BusDeliveryError).
func dispatch(channel string, payload []byte, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			logging.Log.WithField("panic", r).WithField("channel", channel).Error("kv: subscriber handler panicked")
		}
	}()
	h(channel, payload)
}

func toEntries(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprintf("%v", v)
			}
		}
		out = append(out, Entry{ID: m.ID, Fields: fields})
	}
	return out
}

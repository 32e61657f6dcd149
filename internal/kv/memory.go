package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// memoryClient is an in-process C1 implementation for tests, grounded in the
// teacher's PresenceStore (RWMutex-guarded map plus a watcher fanout). It
// honors TTLs and stream ordering but never talks to the network.
type memoryClient struct {
	mu sync.RWMutex

	values map[string]memVal
	logs   map[string][]Entry
	groups map[string]map[string]int // logKey -> group -> next unread index

	seq int64

	subMu    sync.Mutex
	channels map[string]map[int]Handler
	patterns map[string]map[int]Handler
	nextID   int
}

type memVal struct {
	data    []byte
	expires time.Time
}

// NewMemory returns a Client backed entirely by process memory.
func NewMemory() Client {
	return &memoryClient{
		values:   make(map[string]memVal),
		logs:     make(map[string][]Entry),
		groups:   make(map[string]map[string]int),
		channels: make(map[string]map[int]Handler),
		patterns: make(map[string]map[int]Handler),
	}
}

func (m *memoryClient) Ready(ctx context.Context) error { return nil }
func (m *memoryClient) Close() error                    { return nil }

func (m *memoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	if !v.expires.IsZero() && time.Now().After(v.expires) {
		return nil, nil
	}
	return v.data, nil
}

func (m *memoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.values[key] = memVal{data: value, expires: exp}
	return nil
}

func (m *memoryClient) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	v, err := m.Get(ctx, key)
	return v != nil, err
}

func (m *memoryClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := int64(0)
	if v, ok := m.values[key]; ok {
		cur, _ = strconv.ParseInt(string(v.data), 10, 64)
	}
	cur++
	m.values[key] = memVal{data: []byte(strconv.FormatInt(cur, 10))}
	return cur, nil
}

func (m *memoryClient) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, _ := m.Get(ctx, k)
		if v != nil {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryClient) MSet(ctx context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = memVal{data: v}
	}
	return nil
}

func (m *memoryClient) Append(ctx context.Context, logKey string, fields map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%d-0", m.seq)
	m.logs[logKey] = append(m.logs[logKey], Entry{ID: id, Fields: cloneFields(fields)})
	return id, nil
}

func (m *memoryClient) ReadLog(ctx context.Context, logKey, afterID string, count int64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.logs[logKey]
	startIdx := 0
	if afterID != "" && afterID != "-" {
		for i, e := range entries {
			if e.ID == afterID {
				startIdx = i + 1
				break
			}
		}
	}
	if startIdx >= len(entries) {
		return nil, nil
	}
	end := len(entries)
	if count > 0 && startIdx+int(count) < end {
		end = startIdx + int(count)
	}
	out := make([]Entry, end-startIdx)
	copy(out, entries[startIdx:end])
	return out, nil
}

func (m *memoryClient) CreateGroup(ctx context.Context, logKey, group, startID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[logKey]; !ok {
		m.groups[logKey] = make(map[string]int)
	}
	if _, ok := m.groups[logKey][group]; ok {
		return nil
	}
	start := len(m.logs[logKey])
	if startID == "" || startID == "0" || startID == "-" {
		start = 0
	}
	m.groups[logKey][group] = start
	return nil
}

func (m *memoryClient) ReadGroup(ctx context.Context, logKey, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[logKey]
	idx, ok := m.groups[logKey][group]
	if !ok {
		idx = 0
	}
	if idx >= len(entries) {
		return nil, nil
	}
	end := len(entries)
	if count > 0 && idx+int(count) < end {
		end = idx + int(count)
	}
	out := make([]Entry, end-idx)
	copy(out, entries[idx:end])
	m.groups[logKey][group] = end
	return out, nil
}

func (m *memoryClient) Ack(ctx context.Context, logKey, group, id string) error {
	return nil
}

func (m *memoryClient) Trim(ctx context.Context, logKey string, maxLen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[logKey]
	if int64(len(entries)) > maxLen {
		m.logs[logKey] = entries[int64(len(entries))-maxLen:]
	}
	return nil
}

func (m *memoryClient) Publish(ctx context.Context, channel string, payload []byte) error {
	m.subMu.Lock()
	exactHandlers := make([]Handler, 0)
	for _, h := range m.channels[channel] {
		exactHandlers = append(exactHandlers, h)
	}
	patternHandlers := make([]Handler, 0)
	for pattern, handlers := range m.patterns {
		if matchPattern(pattern, channel) {
			for _, h := range handlers {
				patternHandlers = append(patternHandlers, h)
			}
		}
	}
	m.subMu.Unlock()

	for _, h := range exactHandlers {
		dispatch(channel, payload, h)
	}
	for _, h := range patternHandlers {
		dispatch(channel, payload, h)
	}
	return nil
}

func (m *memoryClient) Subscribe(ctx context.Context, channel string, h Handler) (func(), error) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[int]Handler)
	}
	id := m.nextID
	m.nextID++
	m.channels[channel][id] = h
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.channels[channel], id)
	}, nil
}

func (m *memoryClient) PSubscribe(ctx context.Context, pattern string, h Handler) (func(), error) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.patterns[pattern] == nil {
		m.patterns[pattern] = make(map[int]Handler)
	}
	id := m.nextID
	m.nextID++
	m.patterns[pattern][id] = h
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.patterns[pattern], id)
	}, nil
}

// matchPattern supports the single-`*`-on-one-segment patterns named in
// spec §4.7 (e.g. "family:*:location"), matching literally elsewhere.
func matchPattern(pattern, channel string) bool {
	pSegs := splitColon(pattern)
	cSegs := splitColon(channel)
	if len(pSegs) != len(cSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != cSegs[i] {
			return false
		}
	}
	return true
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// callBroker deduplicates cacheable tool calls within one chain and
// serializes calls that touch the same working-area file. A repeated page
// fetch for the same URL hits the cache; concurrent writes to one filename
// queue behind a per-key lock.
type callBroker struct {
	mu       sync.Mutex
	cache    map[string]brokerEntry
	inflight map[string]*brokerInflight
	locks    map[string]chan struct{}
}

type brokerEntry struct {
	result   map[string]any
	cachedAt time.Time
}

type brokerInflight struct {
	done   chan struct{}
	result map[string]any
	err    error
}

func newCallBroker() *callBroker {
	return &callBroker{
		cache:    map[string]brokerEntry{},
		inflight: map[string]*brokerInflight{},
		locks:    map[string]chan struct{}{},
	}
}

// Do runs fn once per key: a cached result is returned directly, a
// concurrent call for the same key waits for the first one and reuses its
// result. Errors are not cached.
func (b *callBroker) Do(ctx context.Context, key string, fn func(context.Context) (map[string]any, error)) (map[string]any, error, bool) {
	if b == nil || key == "" {
		r, e := fn(ctx)
		return r, e, false
	}

	b.mu.Lock()
	if entry, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return cloneResult(entry.result), nil, true
	}
	if inf, ok := b.inflight[key]; ok {
		b.mu.Unlock()
		select {
		case <-inf.done:
			if inf.err != nil {
				return nil, inf.err, true
			}
			return cloneResult(inf.result), nil, true
		case <-ctx.Done():
			return nil, ctx.Err(), false
		}
	}
	inf := &brokerInflight{done: make(chan struct{})}
	b.inflight[key] = inf
	b.mu.Unlock()

	result, err := fn(ctx)

	b.mu.Lock()
	delete(b.inflight, key)
	inf.result = cloneResult(result)
	inf.err = err
	if err == nil {
		b.cache[key] = brokerEntry{result: cloneResult(result), cachedAt: time.Now()}
	}
	close(inf.done)
	b.mu.Unlock()
	return result, err, false
}

// WithResourceLock serializes fn against other calls holding the same key.
func (b *callBroker) WithResourceLock(ctx context.Context, key string, fn func(context.Context) (map[string]any, error)) (map[string]any, error) {
	if b == nil || key == "" {
		return fn(ctx)
	}
	lk := b.resourceLock(key)
	select {
	case <-lk:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { lk <- struct{}{} }()
	return fn(ctx)
}

func (b *callBroker) resourceLock(key string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lk, ok := b.locks[key]; ok {
		return lk
	}
	lk := make(chan struct{}, 1)
	lk <- struct{}{}
	b.locks[key] = lk
	return lk
}

func cacheKeyFor(name string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return name + "|" + string(raw)
}

// lockKeyFor serializes tools that name a working-area file.
func lockKeyFor(args map[string]any) string {
	for _, field := range []string{"filename", "file_path", "image_path"} {
		if v, ok := args[field].(string); ok && v != "" {
			return "file:" + v
		}
	}
	return ""
}

func cloneResult(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

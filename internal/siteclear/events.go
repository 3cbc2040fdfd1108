package siteclear

import (
	"context"
	"hash/crc32"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventStore is the in-memory cache of event data fetched from the events
// origin. Reads go through the cache; Invalidate drops everything so the
// next read of any path goes back to the network.
type EventStore struct {
	origin     string
	httpClient *http.Client
	ram        *ramCache
	log        logrus.FieldLogger
}

func NewEventStore(origin string, maxBytes int64, log logrus.FieldLogger) *EventStore {
	return &EventStore{
		origin:     strings.TrimRight(origin, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ram:        newRAMCache(maxBytes, newRateLimitedLogger(log, time.Minute)),
		log:        log,
	}
}

// Invalidate drops every cached event document.
func (e *EventStore) Invalidate() error {
	e.ram.Clear()
	return nil
}

func (e *EventStore) Len() int { return e.ram.Len() }

func (e *EventStore) TotalSize() int64 { return e.ram.TotalSize() }

// Get returns the document for uri (path plus optional query) and how it was
// served: "hit", "miss" or "bypass" for responses that may not be cached.
func (e *EventStore) Get(ctx context.Context, uri string) (CacheEntry, string, error) {
	if ent, ok := e.ram.Get(uri); ok {
		return ent, "hit", nil
	}
	gen := e.ram.Generation()
	ent, cacheable, err := e.fetch(ctx, uri)
	if err != nil {
		return CacheEntry{}, "", err
	}
	if !cacheable {
		return ent, "bypass", nil
	}
	e.ram.Put(uri, ent, gen)
	return ent, "miss", nil
}

func (e *EventStore) fetch(ctx context.Context, uri string) (CacheEntry, bool, error) {
	if e.origin == "" {
		return CacheEntry{}, false, ErrNoOrigin
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.origin+uri, nil)
	if err != nil {
		return CacheEntry{}, false, err
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return CacheEntry{}, false, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CacheEntry{}, false, err
	}

	ent := CacheEntry{
		Status:   resp.StatusCode,
		Header:   cloneHeader(resp.Header),
		Body:     body,
		StoredAt: time.Now().Unix(),
		Hash32:   crc32.ChecksumIEEE(body),
	}
	ent.Header.Del("Content-Length")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ent, false, nil
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "no-cache") {
		return ent, false, nil
	}
	return ent, true, nil
}

// Prefetch loads paths into the cache. Failures are logged and skipped.
func (e *EventStore) Prefetch(ctx context.Context, paths []string) (stored int) {
	for _, p := range paths {
		if ctx.Err() != nil {
			return stored
		}
		_, kind, err := e.Get(ctx, p)
		if err != nil {
			e.log.WithError(err).WithField("path", p).Warn("event prefetch failed")
			continue
		}
		if kind == "miss" {
			stored++
		}
	}
	return stored
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

// ---- ram cache ----

type ramItem struct {
	key  string
	ent  CacheEntry
	size int64
	prev *ramItem
	next *ramItem
}

// ramCache is a byte-bounded LRU.
type ramCache struct {
	maxBytes int64

	mu    sync.Mutex
	items map[string]*ramItem
	head  *ramItem
	tail  *ramItem
	total int64
	// gen changes on every Clear; a Put carrying an older gen is dropped so a
	// document fetched before a Clear is never stored after it.
	gen uint64

	overflowLog *rateLimitedLogger
}

func newRAMCache(maxBytes int64, overflowLog *rateLimitedLogger) *ramCache {
	return &ramCache{maxBytes: maxBytes, items: map[string]*ramItem{}, overflowLog: overflowLog}
}

func (c *ramCache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *ramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *ramCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return CacheEntry{}, false
	}
	c.moveToFront(it)
	return it.ent, true
}

// Generation returns the value a later Put must carry to be stored.
func (c *ramCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *ramCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items = map[string]*ramItem{}
	c.head, c.tail = nil, nil
	c.total = 0
}

// Put stores ent under key unless the cache was cleared since gen was read.
func (c *ramCache) Put(key string, ent CacheEntry, gen uint64) bool {
	sz := entrySize(ent)
	if c.maxBytes > 0 && sz > c.maxBytes {
		c.overflowLog.Warnf("event document %s is larger than the RAM budget (%s), not cached",
			key, formatBytes(uint64(sz)))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}

	if it, ok := c.items[key]; ok {
		c.total += sz - it.size
		it.ent = ent
		it.size = sz
		c.moveToFront(it)
	} else {
		it := &ramItem{key: key, ent: ent, size: sz}
		c.items[key] = it
		c.addToFront(it)
		c.total += sz
	}

	for c.maxBytes > 0 && c.total > c.maxBytes && c.tail != nil && c.tail != c.head {
		c.evictLocked()
	}
	return true
}

// evictLocked drops the least recently used tenth of the items, never the
// most recent one.
func (c *ramCache) evictLocked() {
	n := len(c.items) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && c.tail != nil && c.tail != c.head; i++ {
		it := c.tail
		c.remove(it)
		delete(c.items, it.key)
		c.total -= it.size
	}
}

func (c *ramCache) addToFront(it *ramItem) {
	it.prev = nil
	it.next = c.head
	if c.head != nil {
		c.head.prev = it
	}
	c.head = it
	if c.tail == nil {
		c.tail = it
	}
}

func (c *ramCache) remove(it *ramItem) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		c.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		c.tail = it.prev
	}
	it.prev, it.next = nil, nil
}

func (c *ramCache) moveToFront(it *ramItem) {
	if c.head == it {
		return
	}
	c.remove(it)
	c.addToFront(it)
}

func entrySize(ent CacheEntry) int64 {
	n := len(ent.Body)
	for k, vs := range ent.Header {
		n += len(k)
		for _, v := range vs {
			n += len(v)
		}
	}
	return int64(n)
}

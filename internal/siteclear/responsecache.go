package siteclear

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
)

type entryMeta struct {
	Size       int64
	LastAccess int64 // unix nanoseconds
}

// ResponseCaches is the named cache storage of the profile. Every cache maps
// request URLs to stored responses; the total size of all caches is bounded.
type ResponseCaches struct {
	profile  *Profile
	maxBytes int64

	mu        sync.Mutex
	index     map[string]entryMeta // "<cache>\x00<url>"
	totalSize int64

	log         logrus.FieldLogger
	overflowLog *rateLimitedLogger
}

func NewResponseCaches(p *Profile, maxBytes int64, log logrus.FieldLogger) (*ResponseCaches, error) {
	c := &ResponseCaches{
		profile:     p,
		maxBytes:    maxBytes,
		index:       map[string]entryMeta{},
		log:         log,
		overflowLog: newRateLimitedLogger(log, time.Minute),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ResponseCaches) loadIndex() error {
	idx := map[string]entryMeta{}
	var total int64
	err := c.profile.scan("cm:", func(key string, val []byte) bool {
		var meta entryMeta
		if decodeGob(val, &meta) != nil {
			return true
		}
		idx[key] = meta
		total += meta.Size
		return true
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.index = idx
	c.totalSize = total
	c.mu.Unlock()
	return nil
}

func (c *ResponseCaches) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}

func validCacheName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid cache name %q", name)
	}
	return nil
}

// Open creates the named cache if it does not exist.
func (c *ResponseCaches) Open(name string) error {
	if err := validCacheName(name); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("cn:"+name), nil)
	return c.profile.write(batch)
}

// Put stores ent for url in the named cache, opening the cache if needed.
func (c *ResponseCaches) Put(name, url string, ent CacheEntry) error {
	if err := validCacheName(name); err != nil {
		return err
	}
	b, err := encodeGob(ent)
	if err != nil {
		return err
	}
	id := name + "\x00" + url
	meta := entryMeta{Size: int64(len(b)), LastAccess: time.Now().UnixNano()}
	mb, err := encodeGob(meta)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte("cn:"+name), nil)
	batch.Put([]byte("ce:"+id), b)
	batch.Put([]byte("cm:"+id), mb)
	if err := c.profile.write(batch); err != nil {
		return err
	}

	c.mu.Lock()
	if old, ok := c.index[id]; ok {
		c.totalSize -= old.Size
	}
	c.index[id] = meta
	c.totalSize += meta.Size
	over := c.maxBytes > 0 && c.totalSize > c.maxBytes
	c.mu.Unlock()

	if over {
		c.overflowLog.Warnf("response cache over %s, evicting", formatBytes(uint64(c.maxBytes)))
		c.evictSome()
	}
	return nil
}

// Match returns the response stored for url in the named cache.
func (c *ResponseCaches) Match(name, url string) (CacheEntry, bool, error) {
	id := name + "\x00" + url
	b, err := c.profile.get("ce:" + id)
	if errors.Is(err, ErrNotFound) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	var ent CacheEntry
	if err := decodeGob(b, &ent); err != nil {
		return CacheEntry{}, false, err
	}

	if err := c.touch(id); err != nil {
		c.log.WithError(err).WithField("cache", name).Debug("last access not persisted")
	}
	return ent, true, nil
}

// touch records an access to id so eviction sees it as recently used.
func (c *ResponseCaches) touch(id string) error {
	c.mu.Lock()
	meta, ok := c.index[id]
	if ok {
		meta.LastAccess = time.Now().UnixNano()
		c.index[id] = meta
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	mb, err := encodeGob(meta)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("cm:"+id), mb)
	return c.profile.write(batch)
}

// Keys lists the cache names in lexical order.
func (c *ResponseCaches) Keys(ctx context.Context) ([]string, error) {
	var out []string
	err := c.profile.scan("cn:", func(key string, _ []byte) bool {
		out = append(out, key)
		return ctx.Err() == nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete drops the named cache and all of its entries. It reports false
// when the cache did not exist.
func (c *ResponseCaches) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := c.profile.has("cn:" + name)
	if err != nil || !ok {
		return false, err
	}

	prefix := name + "\x00"
	batch := new(leveldb.Batch)
	batch.Delete([]byte("cn:" + name))
	var removed []string
	err = c.profile.scan("cm:"+prefix, func(url string, _ []byte) bool {
		id := prefix + url
		batch.Delete([]byte("cm:" + id))
		batch.Delete([]byte("ce:" + id))
		removed = append(removed, id)
		return true
	})
	if err != nil {
		return false, err
	}
	if err := c.profile.write(batch); err != nil {
		return false, err
	}
	c.dropFromIndex(removed)
	return true, nil
}

func (c *ResponseCaches) dropFromIndex(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if meta, ok := c.index[id]; ok {
			c.totalSize -= meta.Size
			delete(c.index, id)
		}
	}
}

// evictSome drops the least recently accessed tenth of the entries.
func (c *ResponseCaches) evictSome() {
	type item struct {
		id string
		m  entryMeta
	}
	c.mu.Lock()
	items := make([]item, 0, len(c.index))
	for id, m := range c.index {
		items = append(items, item{id, m})
	}
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].m.LastAccess < items[j].m.LastAccess
	})

	n := len(items) / 10
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	batch := new(leveldb.Batch)
	ids := make([]string, 0, n)
	for _, it := range items[:n] {
		batch.Delete([]byte("ce:" + it.id))
		batch.Delete([]byte("cm:" + it.id))
		ids = append(ids, it.id)
	}
	if err := c.profile.write(batch); err != nil {
		return
	}
	c.dropFromIndex(ids)
}

package siteclear

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventOrigin(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/events/live":
			w.Header().Set("Cache-Control", "no-store")
		case "/events/missing":
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEventStoreReadThrough(t *testing.T) {
	t.Parallel()
	srv, hits := newEventOrigin(t)
	e := NewEventStore(srv.URL+"/", 1<<20, logrus.New())
	ctx := context.Background()

	ent, kind, err := e.Get(ctx, "/events/upcoming")
	require.NoError(t, err)
	assert.Equal(t, "miss", kind)
	assert.Equal(t, http.StatusOK, ent.Status)
	assert.JSONEq(t, `{"path":"/events/upcoming"}`, string(ent.Body))
	assert.Empty(t, ent.Header.Get("Content-Length"))

	_, kind, err = e.Get(ctx, "/events/upcoming")
	require.NoError(t, err)
	assert.Equal(t, "hit", kind)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 1, e.Len())

	require.NoError(t, e.Invalidate())
	assert.Equal(t, 0, e.Len())
	assert.Zero(t, e.TotalSize())

	_, kind, err = e.Get(ctx, "/events/upcoming")
	require.NoError(t, err)
	assert.Equal(t, "miss", kind, "reads after invalidation go to the network")
	assert.EqualValues(t, 2, hits.Load())
}

func TestEventStoreBypass(t *testing.T) {
	t.Parallel()
	srv, hits := newEventOrigin(t)
	e := NewEventStore(srv.URL, 1<<20, logrus.New())
	ctx := context.Background()

	for _, path := range []string{"/events/live", "/events/missing"} {
		for i := 0; i < 2; i++ {
			_, kind, err := e.Get(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, "bypass", kind, path)
		}
	}
	assert.EqualValues(t, 4, hits.Load())
	assert.Equal(t, 0, e.Len())
}

func TestEventStoreWithoutOrigin(t *testing.T) {
	t.Parallel()
	e := NewEventStore("", 1<<20, logrus.New())
	_, _, err := e.Get(context.Background(), "/events")
	require.ErrorIs(t, err, ErrNoOrigin)
}

func TestEventStorePrefetch(t *testing.T) {
	t.Parallel()
	srv, _ := newEventOrigin(t)
	e := NewEventStore(srv.URL, 1<<20, logrus.New())

	n := e.Prefetch(context.Background(), []string{"/events/a", "/events/b", "/events/live"})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, e.Len())
}

func TestRAMCacheEviction(t *testing.T) {
	t.Parallel()
	c := newRAMCache(1000, newRateLimitedLogger(logrus.New(), 0))
	body := strings.Repeat("x", 300)

	for _, k := range []string{"a", "b", "c"} {
		c.Put(k, CacheEntry{Body: []byte(body)}, 0)
	}
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", CacheEntry{Body: []byte(body)}, 0)
	assert.LessOrEqual(t, c.TotalSize(), int64(1000))
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted first")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)

	c.Put("huge", CacheEntry{Body: []byte(strings.Repeat("x", 2000))}, 0)
	_, ok = c.Get("huge")
	assert.False(t, ok, "entries over the budget are not cached")
}

func TestRAMCacheDropsPutFromBeforeClear(t *testing.T) {
	t.Parallel()
	c := newRAMCache(1000, newRateLimitedLogger(logrus.New(), 0))

	gen := c.Generation()
	c.Clear()
	assert.False(t, c.Put("a", CacheEntry{Body: []byte("old")}, gen))
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	assert.True(t, c.Put("a", CacheEntry{Body: []byte("new")}, c.Generation()))
	ent, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", string(ent.Body))
}

func TestEventStoreInvalidateDuringFetch(t *testing.T) {
	t.Parallel()
	var e *EventStore
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			assert.NoError(t, e.Invalidate())
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	e = NewEventStore(srv.URL, 1<<20, logrus.New())
	ctx := context.Background()

	_, kind, err := e.Get(ctx, "/events/1")
	require.NoError(t, err)
	assert.Equal(t, "miss", kind)
	assert.Equal(t, 0, e.Len(), "a document fetched before Invalidate is not kept")

	_, kind, err = e.Get(ctx, "/events/1")
	require.NoError(t, err)
	assert.Equal(t, "miss", kind)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, 1, e.Len())
}

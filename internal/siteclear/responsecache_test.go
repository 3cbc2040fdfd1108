package siteclear

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(body string) CacheEntry {
	return CacheEntry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func TestResponseCaches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := NewResponseCaches(newTestProfile(t), 0, logrus.New())
	require.NoError(t, err)

	require.NoError(t, c.Open("empty"))
	require.NoError(t, c.Put("static-v1", "https://app.example.com/app.js", testEntry("js")))
	require.NoError(t, c.Put("static-v1", "https://app.example.com/app.css", testEntry("css")))
	require.NoError(t, c.Put("api", "https://app.example.com/api/events", testEntry("[]")))
	require.Error(t, c.Open(""))

	names, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "empty", "static-v1"}, names)

	ent, ok, err := c.Match("static-v1", "https://app.example.com/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "js", string(ent.Body))
	assert.Equal(t, "text/plain", ent.Header.Get("Content-Type"))

	_, ok, err = c.Match("api", "https://app.example.com/app.js")
	require.NoError(t, err)
	assert.False(t, ok)

	before := c.TotalSize()
	require.Positive(t, before)

	deleted, err := c.Delete(ctx, "static-v1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Less(t, c.TotalSize(), before)

	_, ok, err = c.Match("static-v1", "https://app.example.com/app.js")
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = c.Delete(ctx, "static-v1")
	require.NoError(t, err)
	assert.False(t, deleted)

	names, err = c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "empty"}, names)
}

func TestResponseCachesEvictOverBudget(t *testing.T) {
	t.Parallel()
	c, err := NewResponseCaches(newTestProfile(t), 4096, logrus.New())
	require.NoError(t, err)

	body := strings.Repeat("x", 512)
	for i := 0; i < 20; i++ {
		require.NoError(t, c.Put("big", fmt.Sprintf("https://app.example.com/%d", i), testEntry(body)))
		assert.LessOrEqual(t, c.TotalSize(), int64(4096+2048), "after put %d", i)
	}
	_, ok, err := c.Match("big", "https://app.example.com/0")
	require.NoError(t, err)
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, err = c.Match("big", "https://app.example.com/19")
	require.NoError(t, err)
	assert.True(t, ok, "newest entry survives eviction")
}

func TestResponseCachesReloadIndex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := OpenProfile(dir)
	require.NoError(t, err)
	c, err := NewResponseCaches(p, 0, logrus.New())
	require.NoError(t, err)
	require.NoError(t, c.Put("v1", "https://app.example.com/", testEntry("home")))
	size := c.TotalSize()
	require.NoError(t, p.Close())

	p, err = OpenProfile(dir)
	require.NoError(t, err)
	defer p.Close()
	c, err = NewResponseCaches(p, 0, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, size, c.TotalSize())
}

func TestResponseCachesTouch(t *testing.T) {
	t.Parallel()
	p := newTestProfile(t)
	c, err := NewResponseCaches(p, 0, logrus.New())
	require.NoError(t, err)
	require.NoError(t, c.Put("v1", "https://app.example.com/", testEntry("home")))

	id := "v1\x00https://app.example.com/"
	c.index[id] = entryMeta{Size: c.index[id].Size, LastAccess: 1}
	require.NoError(t, c.touch(id))
	assert.Greater(t, c.index[id].LastAccess, int64(1))
	require.NoError(t, c.touch("v1\x00missing"))

	require.NoError(t, p.Close())
	assert.ErrorIs(t, c.touch(id), ErrClosed, "failed access updates are reported")
}

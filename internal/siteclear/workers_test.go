package siteclear

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewWorkerRegistry(newTestProfile(t))

	a, err := r.Register(ctx, "/app/", "/sw.js")
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	_, err = r.Register(ctx, "/admin/", "/admin-sw.js")
	require.NoError(t, err)

	again, err := r.Register(ctx, "/app/", "/sw-v2.js")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID, "re-registering a scope keeps its ID")

	regs, err := r.Registrations(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "/admin/", regs[0].Scope)
	assert.Equal(t, "/sw-v2.js", regs[1].ScriptURL)

	ok, err := r.Unregister(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Unregister(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second unregister finds nothing")

	_, err = r.Register(ctx, "", "/sw.js")
	require.Error(t, err)
}

func TestWorkerRegistryHonorsContext(t *testing.T) {
	t.Parallel()
	r := NewWorkerRegistry(newTestProfile(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Registrations(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, err = r.Unregister(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkerRegistryConcurrentSameScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewWorkerRegistry(newTestProfile(t))

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := r.Register(ctx, "/app/", "/sw.js")
			assert.NoError(t, err)
			ids[i] = reg.ID
		}(i)
	}
	wg.Wait()

	regs, err := r.Registrations(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	for _, id := range ids {
		assert.Equal(t, regs[0].ID, id)
	}
}

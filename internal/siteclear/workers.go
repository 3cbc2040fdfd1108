package siteclear

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
)

// WorkerRegistry holds the background workers registered for the origin.
type WorkerRegistry struct {
	profile *Profile

	// mu serializes writers so a scope never gets two registrations.
	mu sync.Mutex
}

func NewWorkerRegistry(p *Profile) *WorkerRegistry {
	return &WorkerRegistry{profile: p}
}

// Register adds a worker for scope. Registering the same scope again
// replaces the script and keeps the registration ID.
func (r *WorkerRegistry) Register(ctx context.Context, scope, scriptURL string) (Registration, error) {
	if scope == "" || scriptURL == "" {
		return Registration{}, fmt.Errorf("register worker: scope and script are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.Registrations(ctx)
	if err != nil {
		return Registration{}, err
	}
	reg := Registration{
		ID:           uuid.NewString(),
		Scope:        scope,
		ScriptURL:    scriptURL,
		RegisteredAt: time.Now().UTC(),
	}
	for _, cur := range regs {
		if cur.Scope == scope {
			reg.ID = cur.ID
			break
		}
	}
	b, err := encodeGob(reg)
	if err != nil {
		return Registration{}, err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("sw:"+reg.ID), b)
	if err := r.profile.write(batch); err != nil {
		return Registration{}, err
	}
	return reg, nil
}

// Registrations lists registrations ordered by scope.
func (r *WorkerRegistry) Registrations(ctx context.Context) ([]Registration, error) {
	var out []Registration
	err := r.profile.scan("sw:", func(_ string, val []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		var reg Registration
		if decodeGob(val, &reg) == nil {
			out = append(out, reg)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

// Unregister removes the registration with id. It reports false when there
// was nothing to remove.
func (r *WorkerRegistry) Unregister(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.profile.has("sw:" + id)
	if err != nil || !ok {
		return false, err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte("sw:" + id))
	if err := r.profile.write(batch); err != nil {
		return false, err
	}
	return true, nil
}

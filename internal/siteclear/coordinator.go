package siteclear

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EventCache is the in-memory cache of fetched domain data. It is owned by
// the data-fetching side; the coordinator only invalidates it.
type EventCache interface {
	Invalidate() error
}

// CookieStore is the cookie API of the document: readable cookies plus an
// assignment that honours Path, Domain and expiry the way browsers do.
type CookieStore interface {
	Cookies() ([]*http.Cookie, error)
	SetCookie(c *http.Cookie) error
	Hostname() string
}

// KeyedStore is a key/value store that can be counted and cleared wholesale.
type KeyedStore interface {
	Len() (int, error)
	Clear() error
}

type WorkerRegistrations interface {
	Registrations(ctx context.Context) ([]Registration, error)
	Unregister(ctx context.Context, id string) (bool, error)
}

type CacheStorage interface {
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(message string) bool

// Reloader reloads the page, bypassing caches when hard is set.
type Reloader interface {
	Reload(ctx context.Context, hard bool) error
}

// ReloadPrompt is the question asked after a full clear.
const ReloadPrompt = "All caches cleared. Reload the page now?"

// Deps are the collaborators of a Coordinator. Workers and Caches are
// optional; leave them nil when the profile has no such API. A nil Confirm
// never reloads.
type Deps struct {
	Events  EventCache
	Cookies CookieStore
	Local   KeyedStore
	Session KeyedStore
	Workers WorkerRegistrations
	Caches  CacheStorage

	// AuthCookie is expired first on every cookie clear.
	AuthCookie string

	Confirm  ConfirmFunc
	Reloader Reloader
	Logger   logrus.FieldLogger
}

// Coordinator clears every form of client-retained state. It holds no state
// of its own besides counters, and concurrent calls are not serialized: all
// operations are idempotent.
type Coordinator struct {
	d     Deps
	log   logrus.FieldLogger
	stats *clearStats
}

func NewCoordinator(d Deps) *Coordinator {
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		d:     d,
		log:   log.WithField("component", "coordinator"),
		stats: newClearStats(),
	}
}

// WithPrompt returns a coordinator sharing c's backends and counters but
// asking confirm and reloading through r.
func (c *Coordinator) WithPrompt(confirm ConfirmFunc, r Reloader) *Coordinator {
	cp := *c
	cp.d.Confirm = confirm
	cp.d.Reloader = r
	return &cp
}

func (c *Coordinator) Stats() StatsSnapshot { return c.stats.Snapshot() }

// ClearEventsCache drops the event data cache. Errors propagate.
func (c *Coordinator) ClearEventsCache() error {
	return c.apply(context.Background(), BackendEvents)
}

// ClearCookies expires the auth cookie and then every readable cookie. Errors
// propagate. Cookies scoped to a parent domain survive.
func (c *Coordinator) ClearCookies() error {
	return c.apply(context.Background(), BackendCookies)
}

// ClearLocalStorage empties local storage; failures are logged.
func (c *Coordinator) ClearLocalStorage() {
	_ = c.apply(context.Background(), BackendLocalStorage)
}

// ClearSessionStorage empties session storage; failures are logged.
func (c *Coordinator) ClearSessionStorage() {
	_ = c.apply(context.Background(), BackendSessionStorage)
}

// ClearBrowserCache unregisters every worker and deletes every named cache.
// It never fails its caller.
func (c *Coordinator) ClearBrowserCache(ctx context.Context) {
	_ = c.apply(ctx, BackendBrowserCache)
}

// ClearAppCache clears events, cookies, local and session storage, in that
// order. It never touches the browser cache and never reloads.
func (c *Coordinator) ClearAppCache() error {
	return c.applyAll(context.Background(), Backends[:4])
}

// ClearAllCache clears every backend in order, then offers a hard reload.
// When a step fails the later steps and the prompt are skipped.
func (c *Coordinator) ClearAllCache(ctx context.Context) error {
	if err := c.applyAll(ctx, Backends); err != nil {
		return err
	}
	if c.d.Confirm == nil || !c.d.Confirm(ReloadPrompt) {
		return nil
	}
	if c.d.Reloader == nil {
		c.log.Info("reload confirmed but no reloader configured")
		return nil
	}
	if err := c.d.Reloader.Reload(ctx, true); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// ClearSelective clears the flagged backends in declaration order. Each step
// keeps its own error policy; nothing is rolled back.
func (c *Coordinator) ClearSelective(ctx context.Context, opts ClearOptions) error {
	selected := make([]Backend, 0, len(Backends))
	for _, b := range Backends {
		if opts.Selected(b) {
			selected = append(selected, b)
		}
	}
	return c.applyAll(ctx, selected)
}

// GetCacheInfo reads live counts. Inaccessible stores count as zero.
func (c *Coordinator) GetCacheInfo() CacheInfo {
	count := func(b Backend, n func() (int, error)) int {
		v, err := n()
		if err != nil {
			c.log.WithField("backend", b).WithError(err).Debug("count unavailable")
			return 0
		}
		return v
	}
	var info CacheInfo
	if c.d.Cookies != nil {
		info.Cookies = count(BackendCookies, func() (int, error) {
			cs, err := c.d.Cookies.Cookies()
			return len(cs), err
		})
	}
	if c.d.Local != nil {
		info.LocalStorage = count(BackendLocalStorage, c.d.Local.Len)
	}
	if c.d.Session != nil {
		info.SessionStorage = count(BackendSessionStorage, c.d.Session.Len)
	}
	return info
}

func (c *Coordinator) applyAll(ctx context.Context, backends []Backend) error {
	for _, b := range backends {
		if err := c.apply(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the clear routine of b under b's error policy.
func (c *Coordinator) apply(ctx context.Context, b Backend) error {
	err := safely(func() error { return c.clearRoutine(b)(ctx) })
	c.stats.Observe(b, err)
	if err == nil {
		return nil
	}
	if PolicyFor(b) == Swallow {
		c.log.WithField("backend", b).WithError(err).Warn("clear failed, continuing")
		return nil
	}
	return fmt.Errorf("clear %s: %w", b, err)
}

func (c *Coordinator) clearRoutine(b Backend) func(context.Context) error {
	switch b {
	case BackendEvents:
		return func(context.Context) error {
			if c.d.Events == nil {
				return nil
			}
			return c.d.Events.Invalidate()
		}
	case BackendCookies:
		return func(context.Context) error { return c.clearCookies() }
	case BackendLocalStorage:
		return func(context.Context) error { return clearKeyed(c.d.Local) }
	case BackendSessionStorage:
		return func(context.Context) error { return clearKeyed(c.d.Session) }
	case BackendBrowserCache:
		return c.clearBrowserCache
	}
	return func(context.Context) error { return fmt.Errorf("unknown backend %q", b) }
}

// safely turns a panic in fn into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func clearKeyed(s KeyedStore) error {
	if s == nil {
		return ErrStorageUnavailable
	}
	return s.Clear()
}

func expireCookie(name, path, domain string) *http.Cookie {
	return &http.Cookie{
		Name:    name,
		Path:    path,
		Domain:  domain,
		Expires: time.Unix(0, 0).UTC(),
		MaxAge:  -1,
	}
}

// clearCookies cannot know the Path and Domain a cookie was created with, so
// it expires each readable cookie under the default path, under "/" and under
// the document host.
func (c *Coordinator) clearCookies() error {
	jar := c.d.Cookies
	if jar == nil {
		return nil
	}
	if c.d.AuthCookie != "" {
		if err := jar.SetCookie(expireCookie(c.d.AuthCookie, "", "")); err != nil {
			return err
		}
	}

	cookies, err := jar.Cookies()
	if err != nil {
		return err
	}
	host := jar.Hostname()
	var errs []error
	for _, ck := range cookies {
		name := strings.TrimSpace(ck.Name)
		if name == "" {
			continue
		}
		for _, exp := range []*http.Cookie{
			expireCookie(name, "", ""),
			expireCookie(name, "/", ""),
			expireCookie(name, "", host),
		} {
			if err := jar.SetCookie(exp); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// clearBrowserCache runs worker unregistration and cache deletion
// concurrently. A failing phase does not stop the other one.
func (c *Coordinator) clearBrowserCache(ctx context.Context) error {
	var (
		g                   errgroup.Group
		workerErr, cacheErr error
	)
	if c.d.Workers != nil {
		g.Go(func() error {
			workerErr = safely(func() error { return c.unregisterWorkers(ctx) })
			return nil
		})
	}
	if c.d.Caches != nil {
		g.Go(func() error {
			cacheErr = safely(func() error { return c.deleteCaches(ctx) })
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(workerErr, cacheErr)
}

func (c *Coordinator) unregisterWorkers(ctx context.Context) error {
	regs, err := c.d.Workers.Registrations(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	var errs []error
	for _, reg := range regs {
		if _, err := c.d.Workers.Unregister(ctx, reg.ID); err != nil {
			errs = append(errs, fmt.Errorf("unregister worker %s: %w", reg.Scope, err))
			continue
		}
		c.log.WithField("scope", reg.Scope).Debug("worker unregistered")
	}
	return errors.Join(errs...)
}

func (c *Coordinator) deleteCaches(ctx context.Context) error {
	names, err := c.d.Caches.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	var errs []error
	for _, name := range names {
		if _, err := c.d.Caches.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete cache %s: %w", name, err))
			continue
		}
		c.log.WithField("cache", name).Debug("cache deleted")
	}
	return errors.Join(errs...)
}

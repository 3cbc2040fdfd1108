package siteclear

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Service owns the profile, its backends and the coordinator over them.
type Service struct {
	cfg Config
	log logrus.FieldLogger

	profile *Profile
	events  *EventStore
	cookies *CookieJar
	local   *LocalStore
	session *SessionStore
	workers *WorkerRegistry
	caches  *ResponseCaches

	reloader Reloader
	coord    *Coordinator

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewService opens the profile in cfg.Profile.Dir. confirm answers the reload
// question after a full clear.
func NewService(cfg Config, log logrus.FieldLogger, confirm ConfirmFunc) (*Service, error) {
	profile, err := OpenProfile(cfg.Profile.Dir)
	if err != nil {
		return nil, err
	}
	return newService(cfg, log, confirm, profile)
}

func newService(cfg Config, log logrus.FieldLogger, confirm ConfirmFunc, profile *Profile) (*Service, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	caches, err := NewResponseCaches(profile, cfg.diskMax, log)
	if err != nil {
		_ = profile.Close()
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		log:     log,
		profile: profile,
		events:  NewEventStore(cfg.Events.Origin, cfg.ramMax, log),
		cookies: NewCookieJar(profile, cfg.Hostname(), cfg.DocumentPath()),
		local:   NewLocalStore(profile, cfg.Origin(), cfg.Storage.LocalStorage.Disabled),
		session: NewSessionStore(cfg.Storage.SessionStorage.Disabled),
		workers: NewWorkerRegistry(profile),
		caches:  caches,
		stopCh:  make(chan struct{}),
	}
	if cfg.Reload.URL != "" {
		s.reloader = NewHTTPReloader(cfg.Reload.URL)
	}
	s.coord = NewCoordinator(Deps{
		Events:     s.events,
		Cookies:    s.cookies,
		Local:      s.local,
		Session:    s.session,
		Workers:    s.workers,
		Caches:     s.caches,
		AuthCookie: cfg.Cookies.Auth,
		Confirm:    confirm,
		Reloader:   s.reloader,
		Logger:     log,
	})
	return s, nil
}

func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	if err := s.profile.Close(); err != nil {
		s.log.WithError(err).Warn("close profile")
	}
}

func (s *Service) Config() Config                  { return s.cfg }
func (s *Service) Coordinator() *Coordinator       { return s.coord }
func (s *Service) Events() *EventStore             { return s.events }
func (s *Service) Cookies() *CookieJar             { return s.cookies }
func (s *Service) LocalStorage() *LocalStore       { return s.local }
func (s *Service) SessionStorage() *SessionStore   { return s.session }
func (s *Service) Workers() *WorkerRegistry        { return s.workers }
func (s *Service) ResponseCaches() *ResponseCaches { return s.caches }

// Start launches the background loops used while serving: event prefetch and
// periodic stats logging.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		if len(s.cfg.Events.Prefetch) > 0 {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				go func() {
					select {
					case <-s.stopCh:
						cancel()
					case <-ctx.Done():
					}
				}()
				n := s.events.Prefetch(ctx, s.cfg.Events.Prefetch)
				s.log.WithField("stored", n).Info("event prefetch done")
			}()
		}
		if every := s.cfg.Logging.logStatsEveryDur; every > 0 {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.statsLoop(every)
			}()
		}
	})
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			fields := logrus.Fields{
				"events":    s.events.Len(),
				"ramUsage":  formatBytes(uint64(s.events.TotalSize())),
				"diskUsage": formatBytes(uint64(s.caches.TotalSize())),
				"clears":    s.coord.Stats().String(),
			}
			if rss, ok := processRSSBytes(); ok {
				fields["rss"] = formatBytes(rss)
			}
			s.log.WithFields(fields).Info("cache stats")
		}
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/", s.handleEvents)
	mux.HandleFunc("GET /__siteclear/info", s.handleInfo)
	mux.HandleFunc("GET /__siteclear/stats", s.handleStats)
	mux.HandleFunc("POST /__siteclear/clear", s.sameSiteOnly(s.handleClearSelective))
	mux.HandleFunc("POST /__siteclear/clear-app", s.sameSiteOnly(s.handleClearApp))
	mux.HandleFunc("POST /__siteclear/clear-all", s.sameSiteOnly(s.handleClearAll))
	return mux
}

// sameSiteOnly rejects browser requests issued by other sites. Requests that
// carry no Origin (CLI clients, curl) pass; browser ones must come from the
// profile origin or from this server itself.
func (s *Service) sameSiteOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.allowedOrigin(r) {
			s.log.WithFields(logrus.Fields{
				"origin":         r.Header.Get("Origin"),
				"sec-fetch-site": r.Header.Get("Sec-Fetch-Site"),
				"path":           r.URL.Path,
			}).Warn("cross-site clear request rejected")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Service) allowedOrigin(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Site"), "cross-site") {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	self := "http://" + r.Host
	if r.TLS != nil {
		self = "https://" + r.Host
	}
	return strings.EqualFold(origin, s.cfg.Origin()) || strings.EqualFold(origin, self)
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	ent, kind, err := s.events.Get(r.Context(), r.URL.RequestURI())
	if err != nil {
		s.log.WithError(err).WithField("path", r.URL.Path).Warn("event fetch failed")
		setSiteclearHeaders(w.Header(), "bad-gateway")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	writeEntry(w, ent, kind)
}

func (s *Service) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.GetCacheInfo())
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Stats())
}

func (s *Service) handleClearSelective(w http.ResponseWriter, r *http.Request) {
	opts, err := parseClearOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.coord.ClearSelective(r.Context(), opts); err != nil {
		s.clearFailed(w, err)
		return
	}
	setClearSiteData(w.Header(), opts)
	writeJSON(w, http.StatusOK, s.coord.GetCacheInfo())
}

func (s *Service) handleClearApp(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ClearAppCache(); err != nil {
		s.clearFailed(w, err)
		return
	}
	setClearSiteData(w.Header(), ClearOptions{Cookies: true, LocalStorage: true, SessionStorage: true})
	writeJSON(w, http.StatusOK, s.coord.GetCacheInfo())
}

// handleClearAll answers the reload question from the reload query flag.
func (s *Service) handleClearAll(w http.ResponseWriter, r *http.Request) {
	reload, _ := strconv.ParseBool(r.URL.Query().Get("reload"))
	confirm := NeverConfirm
	if reload {
		confirm = AlwaysConfirm
	}
	coord := s.coord.WithPrompt(confirm, s.reloader)
	if err := coord.ClearAllCache(r.Context()); err != nil {
		s.clearFailed(w, err)
		return
	}
	setClearSiteData(w.Header(), ClearOptions{
		Events: true, Cookies: true, LocalStorage: true, SessionStorage: true, BrowserCache: true,
	})
	writeJSON(w, http.StatusOK, s.coord.GetCacheInfo())
}

func (s *Service) clearFailed(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("clear failed")
	http.Error(w, "clear failed", http.StatusInternalServerError)
}

func parseClearOptions(r *http.Request) (ClearOptions, error) {
	q := r.URL.Query()
	var opts ClearOptions
	flags := map[string]*bool{
		"events":         &opts.Events,
		"cookies":        &opts.Cookies,
		"localStorage":   &opts.LocalStorage,
		"sessionStorage": &opts.SessionStorage,
		"browserCache":   &opts.BrowserCache,
	}
	for name, dst := range flags {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ClearOptions{}, &paramError{name: name, value: v}
		}
		*dst = b
	}
	return opts, nil
}

type paramError struct{ name, value string }

func (e *paramError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for " + e.name
}

// setClearSiteData tells a browser calling the endpoint to drop its own copy
// of the cleared state.
func setClearSiteData(h http.Header, opts ClearOptions) {
	var dirs []string
	if opts.BrowserCache {
		dirs = append(dirs, `"cache"`)
	}
	if opts.Cookies {
		dirs = append(dirs, `"cookies"`)
	}
	if opts.LocalStorage || opts.SessionStorage {
		dirs = append(dirs, `"storage"`)
	}
	if len(dirs) > 0 {
		h.Set("Clear-Site-Data", strings.Join(dirs, ", "))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEntry(w http.ResponseWriter, ent CacheEntry, kind string) {
	for k, vs := range ent.Header {
		if strings.EqualFold(k, "x-siteclear") {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	setSiteclearHeaders(w.Header(), kind)
	w.WriteHeader(ent.Status)
	_, _ = w.Write(ent.Body)
}

func setSiteclearHeaders(h http.Header, kind string) {
	if kind != "" {
		h.Set("X-Siteclear", kind)
	}
	// Custom headers are hidden from scripts in a CORS context unless exposed.
	ensureExposedHeader(h, "X-Siteclear")
}

func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}

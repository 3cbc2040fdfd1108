package siteclear

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/net/publicsuffix"
)

type storedCookie struct {
	Name     string
	Value    string
	Domain   string
	HostOnly bool
	Path     string
	Expires  time.Time // zero for session cookies
	Secure   bool
	SameSite http.SameSite
	Created  time.Time
}

func (c storedCookie) key() string {
	scope := "d:" + c.Domain
	if c.HostOnly {
		scope = "h:" + c.Domain
	}
	return "ck:" + scope + "\x00" + c.Path + "\x00" + c.Name
}

// CookieJar stores the cookies of one document. A cookie is identified by
// name, domain, host-only flag and path, so overwriting or expiring a cookie
// only works when those attributes match the ones it was created with.
type CookieJar struct {
	profile *Profile
	host    string
	docPath string
	now     func() time.Time

	mu sync.Mutex
}

func NewCookieJar(p *Profile, host, documentPath string) *CookieJar {
	if documentPath == "" {
		documentPath = "/"
	}
	return &CookieJar{
		profile: p,
		host:    strings.ToLower(host),
		docPath: documentPath,
		now:     time.Now,
	}
}

func (j *CookieJar) Hostname() string { return j.host }

// SetCookie stores c the way document.cookie assignment does. Missing Domain
// makes a host-only cookie, missing Path uses the document's default path,
// and an expiry in the past deletes the cookie with the same identity.
func (j *CookieJar) SetCookie(c *http.Cookie) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("cookie: empty name")
	}
	now := j.now()

	sc := storedCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   j.host,
		HostOnly: true,
		Path:     c.Path,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Created:  now,
	}
	if d := strings.TrimPrefix(strings.ToLower(c.Domain), "."); d != "" {
		if !domainMatch(j.host, d) {
			return fmt.Errorf("cookie %q: domain %q does not match host %q", c.Name, d, j.host)
		}
		if d != j.host && publicsuffix.List.PublicSuffix(d) == d {
			return fmt.Errorf("cookie %q: domain %q is a public suffix", c.Name, d)
		}
		sc.Domain = d
		sc.HostOnly = false
	}
	if !strings.HasPrefix(sc.Path, "/") {
		sc.Path = defaultCookiePath(j.docPath)
	}

	expired := false
	switch {
	case c.MaxAge < 0:
		expired = true
	case c.MaxAge > 0:
		sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		sc.Expires = c.Expires
		expired = !c.Expires.After(now)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	batch := new(leveldb.Batch)
	if expired {
		batch.Delete([]byte(sc.key()))
		return j.profile.write(batch)
	}
	if old, err := j.profile.get(sc.key()); err == nil {
		var prev storedCookie
		if decodeGob(old, &prev) == nil {
			sc.Created = prev.Created
		}
	}
	b, err := encodeGob(sc)
	if err != nil {
		return err
	}
	batch.Put([]byte(sc.key()), b)
	return j.profile.write(batch)
}

// Cookies returns the cookies readable from the document, longest path
// first, then oldest first.
func (j *CookieJar) Cookies() ([]*http.Cookie, error) {
	now := j.now()
	var found []storedCookie
	err := j.profile.scan("ck:", func(_ string, val []byte) bool {
		var sc storedCookie
		if err := decodeGob(val, &sc); err != nil {
			return true
		}
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			return true
		}
		if sc.HostOnly && sc.Domain != j.host {
			return true
		}
		if !sc.HostOnly && !domainMatch(j.host, sc.Domain) {
			return true
		}
		if !pathMatch(j.docPath, sc.Path) {
			return true
		}
		found = append(found, sc)
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(a, b int) bool {
		if len(found[a].Path) != len(found[b].Path) {
			return len(found[a].Path) > len(found[b].Path)
		}
		return found[a].Created.Before(found[b].Created)
	})
	out := make([]*http.Cookie, 0, len(found))
	for _, sc := range found {
		out = append(out, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	return out, nil
}

func (j *CookieJar) Len() (int, error) {
	cs, err := j.Cookies()
	return len(cs), err
}

// defaultCookiePath is the directory of the document path (RFC 6265 5.1.4).
func defaultCookiePath(docPath string) string {
	if !strings.HasPrefix(docPath, "/") {
		return "/"
	}
	i := strings.LastIndex(docPath, "/")
	if i == 0 {
		return "/"
	}
	return docPath[:i]
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

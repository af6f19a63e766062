// Package session reads and clears the session identifier the frontend
// forwards to the backend as a bearer token.
package session

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/itchan-dev/starter/shared/jwt"
)

// CookieName is the cookie holding the session token.
const CookieName = "accessToken"

// Session gives access to the current session token. Clear must be idempotent
// and safe for concurrent use.
type Session interface {
	Token() string
	Clear()
}

// Clearer receives the clear signal of a cookie-backed session.
type Clearer interface {
	ClearSession()
}

// Memory keeps the token in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

func NewMemory(token string) *Memory {
	return &Memory{token: token}
}

func (m *Memory) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Memory) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.Set("")
}

// File keeps the token in a file, re-read on every Token call.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Save writes the token with owner-only permissions.
func (f *File) Save(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.path, []byte(token+"\n"), 0o600)
}

func (f *File) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Truncating is the next best thing when the directory is read-only.
		_ = os.WriteFile(f.path, nil, 0o600)
	}
}

// Cookie is the session of one incoming request. The token is read from the
// request once; Clear is forwarded to sink, which applies it to the response.
type Cookie struct {
	token string
	sink  Clearer
	once  sync.Once
}

func FromRequest(r *http.Request, sink Clearer) *Cookie {
	c := &Cookie{sink: sink}
	if cookie, err := r.Cookie(CookieName); err == nil {
		c.token = cookie.Value
	}
	return c
}

func (c *Cookie) Token() string {
	return c.token
}

func (c *Cookie) Clear() {
	c.once.Do(func() {
		if c.sink != nil {
			c.sink.ClearSession()
		}
	})
}

// ExpiredCookie returns the Set-Cookie value that removes the session cookie.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookie returns the Set-Cookie value storing token.
func NewCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired reports whether the token should be treated as a lapsed session.
func Expired(inspector *jwt.Inspector, token string) bool {
	return inspector.Expired(token, time.Now())
}

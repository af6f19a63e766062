// Package effects collects what the fetch layer asks of the user interface
// while one HTTP request is served: ending the session, moving to another page
// and showing error dialogs. The handler applies them to its response.
package effects

import (
	"context"
	"encoding/base64"
	"html"
	"net/http"
	"sync"

	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/frontend/internal/session"
	"github.com/microcosm-cc/bluemonday"
)

const (
	FlashCookieError   = "flash_error"
	FlashCookieSuccess = "flash_success"

	SessionExpiredMessage = "Your session has expired. Please log in again."
)

var textPolicy = bluemonday.StrictPolicy()

// Effects is safe for concurrent use. Anything recorded after Apply is
// dropped: the response is gone by then.
type Effects struct {
	mu             sync.Mutex
	sessionCleared bool
	redirect       string
	dialogs        []dialog.Options
	applied        bool
}

func New() *Effects {
	return &Effects{}
}

type contextKey struct{}

func NewContext(ctx context.Context, e *Effects) context.Context {
	return context.WithValue(ctx, contextKey{}, e)
}

func FromContext(ctx context.Context) (*Effects, bool) {
	e, ok := ctx.Value(contextKey{}).(*Effects)
	return e, ok && e != nil
}

// Render is the error dialog renderer the frontend registers. It records the
// dialog on the Effects of ctx.
func Render(ctx context.Context, opts dialog.Options) {
	if e, ok := FromContext(ctx); ok {
		e.OpenErrorDialog(ctx, opts)
	}
}

// ClearSession implements session.Clearer.
func (e *Effects) ClearSession() {
	e.record(func() { e.sessionCleared = true })
}

// Navigate implements fetcher.Navigator. The first target wins.
func (e *Effects) Navigate(path string) {
	e.record(func() {
		if e.redirect == "" {
			e.redirect = path
		}
	})
}

// OpenErrorDialog implements dialog.ErrorPresenter.
func (e *Effects) OpenErrorDialog(_ context.Context, opts dialog.Options) {
	opts.Title = plainText(opts.Title)
	opts.Message = plainText(opts.Message)
	e.record(func() { e.dialogs = append(e.dialogs, opts) })
}

// plainText strips markup from backend-supplied text. Templates escape on
// output, so entities are decoded here.
func plainText(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(s))
}

func (e *Effects) record(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied {
		return
	}
	fn()
}

// Dialogs returns the dialogs opened so far, in order.
func (e *Effects) Dialogs() []dialog.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]dialog.Options(nil), e.dialogs...)
}

// Redirect returns the navigation target, if any.
func (e *Effects) Redirect() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redirect, e.redirect != ""
}

func (e *Effects) SessionCleared() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionCleared
}

// Apply writes the session and navigation effects to w. It reports whether a
// redirect was sent, in which case the caller must not write anything else.
// Dialogs are left to the page.
func (e *Effects) Apply(w http.ResponseWriter, r *http.Request, secureCookies bool) bool {
	e.mu.Lock()
	e.applied = true
	cleared, redirect := e.sessionCleared, e.redirect
	e.mu.Unlock()

	if cleared {
		http.SetCookie(w, session.ExpiredCookie(secureCookies))
	}
	if redirect == "" {
		return false
	}
	if cleared {
		SetFlash(w, FlashCookieError, SessionExpiredMessage, secureCookies)
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
	return true
}

// ApplySession writes only the session effect, for responses that must not
// redirect (JSON endpoints). It reports whether the session was cleared.
func (e *Effects) ApplySession(w http.ResponseWriter, secureCookies bool) bool {
	e.mu.Lock()
	e.applied = true
	cleared := e.sessionCleared
	e.mu.Unlock()

	if cleared {
		http.SetCookie(w, session.ExpiredCookie(secureCookies))
	}
	return cleared
}

// SetFlash stores a one-shot message for the next page (base64 keeps any
// character cookie-safe).
func SetFlash(w http.ResponseWriter, name, msg string, secureCookies bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    base64.StdEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash reads a flash message and deletes its cookie.
func PopFlash(w http.ResponseWriter, r *http.Request, name string, secureCookies bool) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	decoded, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

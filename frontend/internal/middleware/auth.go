package middleware

import (
	"context"
	"net/http"

	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/frontend/internal/session"
	"github.com/itchan-dev/starter/shared/domain"
	"github.com/itchan-dev/starter/shared/jwt"
	"github.com/itchan-dev/starter/shared/logger"
)

type userKey struct{}

// Auth guards pages that need a live session. Requests without one are
// redirected to the login page with a flash message instead of reaching the
// backend with a token it will reject anyway.
type Auth struct {
	inspector     *jwt.Inspector
	loginPath     string
	secureCookies bool
}

func NewAuth(inspector *jwt.Inspector, loginPath string, secureCookies bool) *Auth {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Auth{
		inspector:     inspector,
		loginPath:     loginPath,
		secureCookies: secureCookies,
	}
}

// NeedAuth requires a session token that is present, well formed and not
// expired. The token's user is stored in the request context.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				a.redirectToLogin(w, r, "Please log in to continue", false)
				return
			}
			claims, err := a.inspector.Inspect(cookie.Value)
			if err != nil || session.Expired(a.inspector, cookie.Value) {
				logger.Log.Debug("rejecting session", "path", r.URL.Path, "error", err)
				a.redirectToLogin(w, r, effects.SessionExpiredMessage, true)
				return
			}
			user := claims.User
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, &user)))
		})
	}
}

// AdminOnly must run after NeedAuth.
func (a *Auth) AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := GetUserFromContext(r); user == nil || !user.Admin {
				effects.SetFlash(w, effects.FlashCookieError, "Access denied", a.secureCookies)
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) redirectToLogin(w http.ResponseWriter, r *http.Request, msg string, clearSession bool) {
	if clearSession {
		http.SetCookie(w, session.ExpiredCookie(a.secureCookies))
	}
	effects.SetFlash(w, effects.FlashCookieError, msg, a.secureCookies)
	http.Redirect(w, r, a.loginPath, http.StatusSeeOther)
}

// GetUserFromContext returns the user NeedAuth stored, nil without one.
func GetUserFromContext(r *http.Request) *domain.User {
	user, _ := r.Context().Value(userKey{}).(*domain.User)
	return user
}

package middleware

import (
	"context"
	"net/http"

	"github.com/itchan-dev/starter/shared/csrf"
	"github.com/itchan-dev/starter/shared/logger"
)

type csrfKey struct{}

// CSRF issues a double-submit token cookie and rejects unsafe form requests
// whose csrf_token field does not match it.
func CSRF(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(csrf.CookieName); err == nil {
				token = cookie.Value
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				if !csrf.ValidateToken(token, r.FormValue(csrf.FieldName)) {
					logger.Log.Warn("csrf token mismatch", "path", r.URL.Path)
					http.Error(w, "Invalid CSRF token", http.StatusForbidden)
					return
				}
			}

			if token == "" {
				var err error
				if token, err = csrf.GenerateToken(); err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, csrf.Cookie(token, secureCookies))
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFToken returns the token forms must echo back.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfKey{}).(string)
	return token
}

package handler

import (
	"net/http"
	"strings"

	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/frontend/internal/middleware"
	"github.com/itchan-dev/starter/frontend/internal/session"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/logger"
)

func (h *Handler) LoginGetHandler(w http.ResponseWriter, r *http.Request) {
	h.renderTemplate(w, r, "login.html", nil)
}

// LoginPostHandler never applies fetch effects: a rejected login is reported
// on the form, not treated as an expired session.
func (h *Handler) LoginPostHandler(w http.ResponseWriter, r *http.Request) {
	req := api.LoginRequest{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}

	token, err := h.APIClient.Login(r.Context(), req)
	if err != nil {
		logger.Log.Info("login rejected", "error", err)
		h.redirectWithFlash(w, r, h.Public.Frontend.LoginPath, effects.FlashCookieError, errorMessage(err))
		return
	}

	http.SetCookie(w, session.NewCookie(token, h.Public.Frontend.SecureCookies))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		h.APIClient.Logout(middleware.Scope(cookie.Value))
	}
	http.SetCookie(w, session.ExpiredCookie(h.Public.Frontend.SecureCookies))
	h.redirectWithFlash(w, r, h.Public.Frontend.LoginPath, effects.FlashCookieSuccess, "You have been logged out.")
}

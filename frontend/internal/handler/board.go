package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	frontend_domain "github.com/itchan-dev/starter/frontend/internal/domain"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/itchan-dev/starter/shared/logger"
)

func (h *Handler) BoardGetHandler(w http.ResponseWriter, r *http.Request) {
	shortName := chi.URLParam(r, "board")
	page := pageFromRequest(r)

	board, err := h.APIClient.GetBoard(r.Context(), shortName, page)
	if h.applyEffects(w, r) {
		return
	}
	if err != nil {
		status := http.StatusBadGateway
		if code, ok := internal_errors.StatusCode(err); ok {
			status = code
		}
		h.renderTemplateWithStatus(w, r, status, "error.html", nil, errorMessage(err))
		return
	}

	h.renderTemplate(w, r, "board.html", frontend_domain.BoardPage{Board: board, Page: page})
}

func (h *Handler) BoardDeleteHandler(w http.ResponseWriter, r *http.Request) {
	shortName := chi.URLParam(r, "board")

	err := h.APIClient.DeleteBoard(r.Context(), shortName)
	if h.applyEffects(w, r) {
		return
	}
	if err != nil {
		logger.Log.Error("deleting board via API", "board", shortName, "error", err)
		h.redirectWithFlash(w, r, "/boards/"+shortName, effects.FlashCookieError, errorMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/", effects.FlashCookieSuccess, "Board /"+shortName+"/ deleted.")
}

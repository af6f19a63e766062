package handler

import (
	"net/http"
	"strings"

	frontend_domain "github.com/itchan-dev/starter/frontend/internal/domain"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/logger"
)

func (h *Handler) IndexGetHandler(w http.ResponseWriter, r *http.Request) {
	page := pageFromRequest(r)
	boards, err := h.APIClient.ListBoards(r.Context(), page)
	if h.applyEffects(w, r) {
		return
	}

	data := frontend_domain.BoardList{
		Boards:   boards,
		Page:     page,
		Creating: h.APIClient.CreatingBoard(),
	}
	errMsg := ""
	if err != nil {
		// The error dialog already carries the details.
		errMsg = "Could not load boards."
	}
	h.renderTemplateWithStatus(w, r, http.StatusOK, "index.html", data, errMsg)
}

func (h *Handler) IndexPostHandler(w http.ResponseWriter, r *http.Request) {
	targetURL := "/" // Redirect back to the index page on success or error

	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, targetURL, effects.FlashCookieError, "Invalid form data.")
		return
	}

	req := api.CreateBoardRequest{
		Name:      strings.TrimSpace(r.FormValue("name")),
		ShortName: strings.TrimSpace(r.FormValue("shortName")),
	}
	board, err := h.APIClient.CreateBoard(r.Context(), req)
	if h.applyEffects(w, r) {
		return
	}
	if err != nil {
		logger.Log.Error("creating board via API", "error", err)
		h.redirectWithFlash(w, r, targetURL, effects.FlashCookieError, errorMessage(err))
		return
	}

	// Success: the board list was invalidated, the GET handler re-fetches it.
	h.redirectWithFlash(w, r, targetURL, effects.FlashCookieSuccess, "Board /"+board.ShortName+"/ created.")
}

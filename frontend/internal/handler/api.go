package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/utils"
)

// JSON endpoints serve the same cached reads to scripts. They never redirect:
// an expired session is a 401 with the session cookie cleared.

func (h *Handler) finishJSON(w http.ResponseWriter, r *http.Request) {
	if eff, ok := effects.FromContext(r.Context()); ok {
		eff.ApplySession(w, h.Public.Frontend.SecureCookies)
	}
}

func (h *Handler) APIBoardsHandler(w http.ResponseWriter, r *http.Request) {
	boards, err := h.APIClient.ListBoards(r.Context(), pageFromRequest(r))
	h.finishJSON(w, r)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, api.BoardListResponse{Boards: boards})
}

func (h *Handler) APIBoardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.APIClient.GetBoard(r.Context(), chi.URLParam(r, "board"), pageFromRequest(r))
	h.finishJSON(w, r)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, board)
}

func (h *Handler) APIMeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.APIClient.Me(r.Context())
	h.finishJSON(w, r)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

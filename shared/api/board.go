package api

import (
	"github.com/itchan-dev/starter/shared/domain"
)

// Form limits, kept in sync with the validate tags below.
const (
	BoardNameMaxLen      = 64
	BoardShortNameMaxLen = 10
)

// Request DTOs

type CreateBoardRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	ShortName string `json:"short_name" validate:"required,alphanum,max=10"`
}

// BoardListParams are the query parameters of GET /v1/boards.
type BoardListParams struct {
	Page int `json:"page,omitempty"`
}

// BoardParams identify one board page.
type BoardParams struct {
	ShortName string `json:"short_name"`
	Page      int    `json:"page,omitempty"`
}

// Response DTOs

// BoardListResponse is the data payload of GET /v1/boards.
type BoardListResponse struct {
	Boards []domain.BoardMetadata `json:"boards"`
}

package frontend_domain

import (
	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/shared/domain"
)

// CommonTemplateData holds fields that are common to all page templates.
// Available in templates as .Common via the TemplateData wrapper.
type CommonTemplateData struct {
	Error     string
	Success   string
	User      *domain.User
	CSRFToken string
	// Dialogs opened by failed backend calls while rendering this page.
	Dialogs    []dialog.Options
	Validation ValidationData
	MockMode   bool // fixtures are being served instead of the backend
}

// ValidationData holds the form limits templates need.
type ValidationData struct {
	BoardNameMaxLen      int
	BoardShortNameMaxLen int
}

// BoardList is the index page.
type BoardList struct {
	Boards   []domain.BoardMetadata
	Page     int
	Creating bool
}

// BoardPage is one board with its threads.
type BoardPage struct {
	Board domain.Board
	Page  int
}

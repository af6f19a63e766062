package handler

import (
	"embed"
	"html/template"

	"github.com/itchan-dev/starter/frontend/internal/apiclient"
	"github.com/itchan-dev/starter/shared/config"
)

// TemplateFS holds the page templates. Every page is parsed together with
// base.html.
//
//go:embed templates/*.html
var TemplateFS embed.FS

type Handler struct {
	Templates map[string]*template.Template
	Public    config.Public
	APIClient *apiclient.APIClient
}

func New(templates map[string]*template.Template, publicCfg config.Public, apiClient *apiclient.APIClient) *Handler {
	return &Handler{
		Templates: templates,
		Public:    publicCfg,
		APIClient: apiClient,
	}
}

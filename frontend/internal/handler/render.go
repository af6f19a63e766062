package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"

	frontend_domain "github.com/itchan-dev/starter/frontend/internal/domain"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/frontend/internal/middleware"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/config"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/itchan-dev/starter/shared/logger"
)

const baseTemplate = "base.html"

// TemplateData wraps page-specific data with common template data.
// Templates access page data via .Data and common data via .Common.
type TemplateData struct {
	Data   any
	Common frontend_domain.CommonTemplateData
}

// LoadTemplates parses every page of fsys together with base.html.
func LoadTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	pages, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	funcs := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}

	templates := make(map[string]*template.Template)
	for _, page := range pages {
		name := path.Base(page)
		if name == baseTemplate {
			continue
		}
		tmpl, err := template.New(baseTemplate).Funcs(funcs).ParseFS(fsys, "templates/"+baseTemplate, page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

func (h *Handler) getTemplate(name string) (*template.Template, bool) {
	tmpl, ok := h.Templates[name]
	return tmpl, ok
}

func (h *Handler) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	h.renderTemplateWithStatus(w, r, http.StatusOK, name, data, "")
}

func (h *Handler) renderTemplateWithStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any, errMsg string) {
	tmpl, ok := h.getTemplate(name)
	if !ok {
		http.Error(w, fmt.Sprintf("Template %s not found", name), http.StatusInternalServerError)
		return
	}

	common := h.initCommonTemplateData(w, r)
	if errMsg != "" {
		common.Error = errMsg
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, TemplateData{Data: data, Common: common}); err != nil {
		logger.Log.Error("error executing template", "template", name, "error", err)
		http.Error(w, "Internal Server Error rendering template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) initCommonTemplateData(w http.ResponseWriter, r *http.Request) frontend_domain.CommonTemplateData {
	secure := h.Public.Frontend.SecureCookies
	common := frontend_domain.CommonTemplateData{
		Error:     effects.PopFlash(w, r, effects.FlashCookieError, secure),
		Success:   effects.PopFlash(w, r, effects.FlashCookieSuccess, secure),
		User:      middleware.GetUserFromContext(r),
		CSRFToken: middleware.CSRFToken(r),
		Validation: frontend_domain.ValidationData{
			BoardNameMaxLen:      api.BoardNameMaxLen,
			BoardShortNameMaxLen: api.BoardShortNameMaxLen,
		},
		MockMode: h.Public.Env == config.ModeDevelopment,
	}
	if eff, ok := effects.FromContext(r.Context()); ok {
		common.Dialogs = eff.Dialogs()
	}
	return common
}

// applyEffects writes what the fetch layer requested while the handler ran.
// It reports whether the response was already sent as a redirect.
func (h *Handler) applyEffects(w http.ResponseWriter, r *http.Request) bool {
	eff, ok := effects.FromContext(r.Context())
	if !ok {
		return false
	}
	return eff.Apply(w, r, h.Public.Frontend.SecureCookies)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, cookieName, msg string) {
	effects.SetFlash(w, cookieName, msg, h.Public.Frontend.SecureCookies)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// errorMessage is the text shown for a failed backend call.
func errorMessage(err error) string {
	var se *internal_errors.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func pageFromRequest(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

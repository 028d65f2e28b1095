// Package httpapi exposes the storefront REST API: storefront and template
// management, section and block editing, and the page render endpoint.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	app "github.com/shoplight/storefront/internal/app"
	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/services/composition"
	"github.com/shoplight/storefront/internal/app/services/customization"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	return NewHandlerWithAudit(application, nil)
}

// NewHandlerWithAudit is NewHandler with an audit sink for merchant edits.
func NewHandlerWithAudit(application *app.Application, sink AuditSink) http.Handler {
	h := &handler{app: application, audit: newAuditLog(0, sink)}
	mux := http.NewServeMux()
	mux.HandleFunc("/render/", h.render)
	mux.HandleFunc("/storefronts", h.storefronts)
	mux.HandleFunc("/storefronts/", h.storefrontResources)
	mux.HandleFunc("/templates/", h.templateResources)
	mux.HandleFunc("/sections/", h.sectionResources)
	mux.HandleFunc("/blocks/", h.blockResources)
	mux.HandleFunc("/audit", h.auditEntries)
	return mux
}

// render handles GET /render/{subdomain}/{pageType}. An optional
// template_id query parameter previews a specific template.
func (h *handler) render(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/render"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	subdomain, pageType := parts[0], parts[1]

	opts := composition.ResolveOptions{TemplateID: r.URL.Query().Get("template_id")}
	sections, err := h.app.Resolver.ResolvePage(r.Context(), subdomain, pageType, opts)
	if err != nil {
		writeError(w, statusForError(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subdomain": subdomain,
		"page_type": pageType,
		"sections":  sections,
	})
}

func (h *handler) storefronts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Subdomain string `json:"subdomain"`
			Name      string `json:"name"`
			ThemeCode string `json:"theme_code"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sf, err := h.app.Storefronts.Create(r.Context(), storefront.Storefront{
			OwnerID:   middleware.GetUserID(r.Context()),
			Subdomain: payload.Subdomain,
			Name:      payload.Name,
			ThemeCode: payload.ThemeCode,
		})
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusCreated)
		writeJSON(w, http.StatusCreated, sf)

	case http.MethodGet:
		list, err := h.app.Storefronts.List(r.Context(), middleware.GetUserID(r.Context()))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) storefrontResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/storefronts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	storefrontID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			sf, err := h.app.Storefronts.Get(r.Context(), storefrontID)
			if err != nil {
				writeError(w, statusForError(err, http.StatusNotFound), err)
				return
			}
			writeJSON(w, http.StatusOK, sf)
		case http.MethodPut:
			var payload struct {
				Name      string `json:"name"`
				ThemeCode string `json:"theme_code"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			sf, err := h.app.Storefronts.Update(r.Context(), storefront.Storefront{
				ID:        storefrontID,
				Name:      payload.Name,
				ThemeCode: payload.ThemeCode,
			})
			if err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			h.recordAudit(r, http.StatusOK)
			writeJSON(w, http.StatusOK, sf)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] == "templates" {
		h.storefrontTemplates(w, r, storefrontID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) storefrontTemplates(w http.ResponseWriter, r *http.Request, storefrontID string) {
	actor := middleware.GetUserID(r.Context())
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			TemplateType string                 `json:"template_type"`
			ThemeCode    string                 `json:"theme_code"`
			Name         string                 `json:"name"`
			IsDefault    bool                   `json:"is_default"`
			Enabled      bool                   `json:"enabled"`
			Settings     map[string]interface{} `json:"settings"`
			SEOSettings  map[string]interface{} `json:"seo_settings"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tpl, err := h.app.Customization.CreateTemplate(r.Context(), actor, template.Template{
			StorefrontID: storefrontID,
			TemplateType: payload.TemplateType,
			ThemeCode:    payload.ThemeCode,
			Name:         payload.Name,
			IsDefault:    payload.IsDefault,
			Enabled:      payload.Enabled,
			Settings:     payload.Settings,
			SEOSettings:  payload.SEOSettings,
		})
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusCreated)
		writeJSON(w, http.StatusCreated, tpl)

	case http.MethodGet:
		list, err := h.app.Customization.ListTemplates(r.Context(), actor, storefrontID)
		if err != nil {
			writeError(w, statusForError(err, http.StatusInternalServerError), err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) templateResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/templates"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	templateID := parts[0]
	actor := middleware.GetUserID(r.Context())

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			tpl, err := h.app.Customization.GetTemplate(r.Context(), actor, templateID)
			if err != nil {
				writeError(w, statusForError(err, http.StatusNotFound), err)
				return
			}
			writeJSON(w, http.StatusOK, tpl)
		case http.MethodPut:
			var payload struct {
				TemplateType string                 `json:"template_type"`
				ThemeCode    string                 `json:"theme_code"`
				Name         string                 `json:"name"`
				IsDefault    bool                   `json:"is_default"`
				Enabled      bool                   `json:"enabled"`
				Settings     map[string]interface{} `json:"settings"`
				SEOSettings  map[string]interface{} `json:"seo_settings"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			tpl, err := h.app.Customization.UpdateTemplate(r.Context(), actor, template.Template{
				ID:           templateID,
				TemplateType: payload.TemplateType,
				ThemeCode:    payload.ThemeCode,
				Name:         payload.Name,
				IsDefault:    payload.IsDefault,
				Enabled:      payload.Enabled,
				Settings:     payload.Settings,
				SEOSettings:  payload.SEOSettings,
			})
			if err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			h.recordAudit(r, http.StatusOK)
			writeJSON(w, http.StatusOK, tpl)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] != "sections" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 3 && parts[2] == "reorder" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			SectionIDs []string `json:"section_ids"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		secs, err := h.app.Customization.ReorderSections(r.Context(), actor, templateID, payload.SectionIDs)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusOK)
		writeJSON(w, http.StatusOK, secs)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			SectionType string                 `json:"section_type"`
			Settings    map[string]interface{} `json:"settings"`
			Position    int                    `json:"position"`
			Enabled     *bool                  `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		enabled := true
		if payload.Enabled != nil {
			enabled = *payload.Enabled
		}
		sec, err := h.app.Customization.CreateSection(r.Context(), actor, templateID, template.SectionInstance{
			SectionType: payload.SectionType,
			Settings:    payload.Settings,
			Position:    payload.Position,
			Enabled:     enabled,
		})
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusCreated)
		writeJSON(w, http.StatusCreated, sec)

	case http.MethodGet:
		secs, err := h.app.Customization.ListSections(r.Context(), actor, templateID)
		if err != nil {
			writeError(w, statusForError(err, http.StatusInternalServerError), err)
			return
		}
		writeJSON(w, http.StatusOK, secs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) sectionResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sections"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sectionID := parts[0]
	actor := middleware.GetUserID(r.Context())

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			var payload struct {
				SectionType *string                `json:"section_type"`
				Settings    map[string]interface{} `json:"settings"`
				Position    *int                   `json:"position"`
				Enabled     *bool                  `json:"enabled"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			sec, err := h.app.Customization.UpdateSection(r.Context(), actor, sectionID, customization.SectionParams{
				SectionType: payload.SectionType,
				Settings:    payload.Settings,
				Position:    payload.Position,
				Enabled:     payload.Enabled,
			})
			if err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			h.recordAudit(r, http.StatusOK)
			writeJSON(w, http.StatusOK, sec)
		case http.MethodDelete:
			if err := h.app.Customization.DeleteSection(r.Context(), actor, sectionID); err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			h.recordAudit(r, http.StatusNoContent)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] != "blocks" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 3 && parts[2] == "reorder" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			BlockIDs []string `json:"block_ids"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		blocks, err := h.app.Customization.ReorderBlocks(r.Context(), actor, sectionID, payload.BlockIDs)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusOK)
		writeJSON(w, http.StatusOK, blocks)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		BlockType string                 `json:"block_type"`
		Settings  map[string]interface{} `json:"settings"`
		Position  int                    `json:"position"`
		Enabled   *bool                  `json:"enabled"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	blk, err := h.app.Customization.CreateBlock(r.Context(), actor, sectionID, template.BlockInstance{
		BlockType: payload.BlockType,
		Settings:  payload.Settings,
		Position:  payload.Position,
		Enabled:   enabled,
	})
	if err != nil {
		writeError(w, statusForError(err, http.StatusBadRequest), err)
		return
	}
	h.recordAudit(r, http.StatusCreated)
	writeJSON(w, http.StatusCreated, blk)
}

func (h *handler) blockResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/blocks"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	blockID := parts[0]
	actor := middleware.GetUserID(r.Context())

	switch r.Method {
	case http.MethodPut:
		var payload struct {
			BlockType *string                `json:"block_type"`
			Settings  map[string]interface{} `json:"settings"`
			Position  *int                   `json:"position"`
			Enabled   *bool                  `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		blk, err := h.app.Customization.UpdateBlock(r.Context(), actor, blockID, customization.BlockParams{
			BlockType: payload.BlockType,
			Settings:  payload.Settings,
			Position:  payload.Position,
			Enabled:   payload.Enabled,
		})
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusOK)
		writeJSON(w, http.StatusOK, blk)
	case http.MethodDelete:
		if err := h.app.Customization.DeleteBlock(r.Context(), actor, blockID); err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		h.recordAudit(r, http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.list())
}

func (h *handler) recordAudit(r *http.Request, status int) {
	h.audit.record(r, status)
}

// statusForError maps service errors to HTTP status codes, falling back to
// fallback for anything unrecognised.
func statusForError(err error, fallback int) int {
	switch {
	case customization.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, customization.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, composition.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, themes.ErrThemeNotFound):
		return http.StatusServiceUnavailable
	default:
		return fallback
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

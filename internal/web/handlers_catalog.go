package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/web/middleware"
)

const (
	defaultUploadsLimit = 20
	maxUploadsLimit     = 200
)

// CatalogResponse is the body of GET /api/sites/{siteID}/products.
type CatalogResponse struct {
	SiteID   int64               `json:"site_id"`
	Products []core.CatalogEntry `json:"products"`
}

// UploadsResponse is the body of GET /api/sites/{siteID}/uploads.
type UploadsResponse struct {
	SiteID  int64               `json:"site_id"`
	Uploads []core.UploadRecord `json:"uploads"`
}

// handleListProducts returns the live catalog of a site.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}

	entries, err := s.service.Catalog(r.Context(), siteID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if entries == nil {
		entries = []core.CatalogEntry{}
	}

	writeJSON(w, CatalogResponse{SiteID: siteID, Products: entries})
}

// handleListUploads returns recent upload records, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	siteID, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}

	limit := defaultUploadsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxUploadsLimit)
		}
	}

	records, err := s.service.Uploads(r.Context(), siteID, limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if records == nil {
		records = []core.UploadRecord{}
	}

	writeJSON(w, UploadsResponse{SiteID: siteID, Uploads: records})
}

// handleLimiterStatus reports ingestion slot and byte budget usage.
func (s *Server) handleLimiterStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// authorizeSite resolves {siteID} and checks the caller may manage it.
// It writes the error response itself and reports false on failure.
func (s *Server) authorizeSite(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		s.respondError(w, r, errUnauthenticated, http.StatusUnauthorized)
		return 0, false
	}

	siteID, err := parseSiteID(chi.URLParam(r, "siteID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return 0, false
	}

	if _, err := s.service.Authorize(r.Context(), siteID, id.UserID, id.IsAdmin()); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return 0, false
	}
	return siteID, true
}

package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/logging"
	"github.com/JonMunkholm/sitecatalog/internal/web/middleware"
)

// multipartMemory is how much of a form is kept in memory before parts
// spill to temp files.
const multipartMemory = 32 << 20

// manifestFields are the form fields accepted for the manifest, in order.
var manifestFields = []string{"csv", "manifest"}

// handleUpload replaces a site's catalog with an uploaded manifest and images.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		s.respondError(w, r, errUnauthenticated, http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxRequestSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.respondError(w, r, errBodyTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	siteID, err := parseSiteID(r.FormValue("site_id"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	manifestName, manifest, err := readManifest(r.MultipartForm)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	images, err := readImages(r.MultipartForm.File["images"])
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := r.Context()
	if _, err := s.service.Authorize(ctx, siteID, id.UserID, id.IsAdmin()); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(ctx).Info("upload received",
		"site_id", siteID,
		"user_id", id.UserID,
		"manifest", manifestName,
		"images", len(images),
	)

	res, err := s.service.Ingest(ctx, core.Request{
		SiteID:       siteID,
		UserID:       id.UserID,
		ManifestName: manifestName,
		Manifest:     manifest,
		Images:       images,
	})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, res)
}

func parseSiteID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errMissingSiteID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidSiteID
	}
	return id, nil
}

func readManifest(form *multipart.Form) (string, []byte, error) {
	for _, field := range manifestFields {
		files := form.File[field]
		if len(files) == 0 {
			continue
		}
		data, err := readPart(files[0])
		if err != nil {
			return "", nil, err
		}
		return files[0].Filename, data, nil
	}
	return "", nil, errNoManifest
}

func readImages(files []*multipart.FileHeader) ([]core.AssetFile, error) {
	images := make([]core.AssetFile, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, core.AssetFile{Name: fh.Filename, Data: data})
	}
	return images, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errInvalidForm, fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errInvalidForm, fh.Filename, err)
	}
	return data, nil
}

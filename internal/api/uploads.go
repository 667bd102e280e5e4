package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/middleware"
)

// multipartOverhead leaves room for the form boundaries around the file.
const multipartOverhead = 64 << 10

// handleUpload stores an image for a listing resource. The image is read
// from the multipart field "file" or, for other content types, the raw body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploads == nil {
		s.fail(w, r, svcerrors.Unavailable("uploads are not configured", nil))
		return
	}
	maxBytes := s.deps.Uploads.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	var (
		data     []byte
		filename string
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, filename, err = readFormFile(r, maxBytes)
	} else {
		var truncated bool
		data, truncated, err = httputil.ReadAllWithLimit(r.Body, maxBytes)
		if err == nil && truncated {
			err = svcerrors.TooLarge(maxBytes)
		}
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = svcerrors.TooLarge(maxBytes)
		}
		s.fail(w, r, err)
		return
	}

	actor := middleware.GetActor(r.Context())
	res, err := s.deps.Uploads.Upload(r.Context(), actor.UserID, mux.Vars(r)["resource"], filename, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.created(w, res)
}

func readFormFile(r *http.Request, maxBytes int64) ([]byte, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", err
		}
		return nil, "", svcerrors.Validation("file", "file is required")
	}
	defer file.Close()
	data, truncated, err := httputil.ReadAllWithLimit(file, maxBytes)
	if err != nil {
		return nil, "", err
	}
	if truncated {
		return nil, "", svcerrors.TooLarge(maxBytes)
	}
	return data, header.Filename, nil
}

// handleDeleteUpload removes one of the caller's images given ?path=.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploads == nil {
		s.fail(w, r, svcerrors.Unavailable("uploads are not configured", nil))
		return
	}
	actor := middleware.GetActor(r.Context())
	if err := s.deps.Uploads.Delete(r.Context(), actor.UserID, r.URL.Query().Get("path")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

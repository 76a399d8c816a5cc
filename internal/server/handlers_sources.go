package server

import (
	"errors"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/storage"
)

// handleUploadSource stores the request body as a source table and returns
// the handle to pass to POST /pipelines. The body is not parsed here; VALIDATE
// does that when a pipeline runs.
func (s *Server) handleUploadSource(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.errorResponse(w, r, http.StatusNotImplemented, "source uploads are not enabled")
		return
	}
	name := path.Base(chi.URLParam(r, "name"))
	format, err := ingestion.DetectFormat(name)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	obj, err := s.objects.Put(r.Context(), storage.SourceKey(name), body, string(format))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, r, http.StatusRequestEntityTooLarge, "source file too large")
			return
		}
		s.errorFromErr(w, r, err)
		return
	}

	s.logger.Info("source uploaded",
		zap.String("handle", obj.Handle), zap.String("format", obj.Format), zap.Int64("size", obj.Size))
	w.Header().Set("Location", "/sources/"+obj.Handle)
	s.jsonResponse(w, r, http.StatusCreated, obj)
}

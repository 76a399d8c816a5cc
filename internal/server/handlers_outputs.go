package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/rendering"
	"github.com/jonathan/data-augmenter/internal/types"
)

// outputContentTypes maps the downloadable output formats to their media types
var outputContentTypes = map[string]string{
	rendering.FormatParquet: "application/vnd.apache.parquet",
	rendering.FormatCSV:     "text/csv; charset=utf-8",
	"manifest":              "application/json",
}

// handleDownloadOutput streams one committed output of a completed pipeline
func (s *Server) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		s.errorResponse(w, r, http.StatusNotImplemented, "output downloads are not enabled")
		return
	}
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	format := chi.URLParam(r, "format")
	contentType, known := outputContentTypes[format]
	if !known {
		s.errorResponse(w, r, http.StatusNotFound, "unknown output format: "+format)
		return
	}

	p, err := s.pipelines.Get(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	if p.Stage != types.StageCompleted || p.Outputs == nil {
		s.errorResponse(w, r, http.StatusConflict,
			fmt.Sprintf("pipeline %s is %s and has no outputs", id, p.Stage))
		return
	}
	obj := outputObject(p.Outputs, format)
	if obj == nil {
		s.errorResponse(w, r, http.StatusNotFound, "pipeline has no "+format+" output")
		return
	}

	rc, err := s.objects.Open(r.Context(), obj.Handle)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	defer rc.Close()

	ext := obj.Format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "augmented_"+id.String()+"."+ext))
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if obj.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(obj.Checksum))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("output download interrupted",
			zap.String("pipeline_id", id.String()), zap.String("format", format), zap.Error(err))
	}
}

func outputObject(o *types.PipelineOutputs, format string) *types.StoredObject {
	switch format {
	case rendering.FormatParquet:
		return o.Parquet
	case rendering.FormatCSV:
		return o.CSV
	default:
		return o.Manifest
	}
}

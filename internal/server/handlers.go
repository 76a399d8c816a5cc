package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/schemas"
	"github.com/jonathan/data-augmenter/internal/types"
	bundled "github.com/jonathan/data-augmenter/schemas"
)

// maxRequestBytes bounds JSON request bodies
const maxRequestBytes = 1 << 20

// StartPipelineRequest is the body of POST /pipelines
type StartPipelineRequest struct {
	Source string                   `json:"source" validate:"required"`
	Config types.AugmentationConfig `json:"config"`
}

// StartPipelineResponse is returned when a pipeline is queued
type StartPipelineResponse struct {
	PipelineID    uuid.UUID  `json:"pipeline_id"`
	Stage         string     `json:"stage"`
	RestartedFrom *uuid.UUID `json:"restarted_from,omitempty"`
}

// MethodInfo describes an augmentation method
type MethodInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleStartPipeline validates the request against the bundled schema and the
// config rules, then queues the pipeline.
func (s *Server) handleStartPipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		s.errorResponse(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if !json.Valid(body) {
		s.errorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := schemas.ValidateDocument(bundled.PipelineRequest, body); err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			s.errorResponse(w, r, http.StatusBadRequest, verr.Summary())
			return
		}
		s.errorFromErr(w, r, err)
		return
	}

	var req StartPipelineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := types.NewValidator().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			verr := fromValidator(fieldErrs)
			s.errorResponse(w, r, http.StatusBadRequest, verr.Error())
			return
		}
		s.errorFromErr(w, r, err)
		return
	}

	id, err := s.pipelines.StartPipeline(r.Context(), req.Source, req.Config)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/pipelines/"+id.String())
	s.jsonResponse(w, r, http.StatusAccepted, StartPipelineResponse{
		PipelineID: id,
		Stage:      string(types.StagePending),
	})
}

// handleGetPipeline returns the pipeline record
func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	p, err := s.pipelines.Get(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, p)
}

// handleGetProgress returns the latest progress event
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	ev, err := s.pipelines.GetProgress(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, ev)
}

// handleListEvents returns the full progress log
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	events, err := s.pipelines.Events(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, map[string]any{
		"pipeline_id": id,
		"events":      events,
		"count":       len(events),
	})
}

// handleStream replays the progress log as SSE and follows it until the
// pipeline reaches a terminal event or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	events, err := s.pipelines.Events(ctx, id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	sent := 0
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		for ; sent < len(events); sent++ {
			ev := events[sent]
			if err := sse.WriteEventWithID(strconv.Itoa(sent), "progress", ev); err != nil {
				s.logger.Debug("stream closed", zap.String("pipeline_id", id.String()), zap.Error(err))
				return
			}
			if ev.IsTerminal() {
				sse.WriteComplete(id.String(), ev.Step)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		events, err = s.pipelines.Events(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				sse.WriteError(err.Error())
			}
			return
		}
	}
}

// handleCancel flags a running pipeline for cancellation
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	if err := s.pipelines.Cancel(r.Context(), id); err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusAccepted, map[string]any{
		"pipeline_id": id,
		"status":      "cancelling",
	})
}

// handleRestart starts a new pipeline from a finished one's request
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}
	newID, err := s.pipelines.Restart(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/pipelines/"+newID.String())
	s.jsonResponse(w, r, http.StatusAccepted, StartPipelineResponse{
		PipelineID:    newID,
		Stage:         string(types.StagePending),
		RestartedFrom: &id,
	})
}

// handleMethods lists the supported augmentation methods
func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	methods := types.Methods()
	out := make([]MethodInfo, 0, len(methods))
	for _, m := range methods {
		out = append(out, MethodInfo{Name: string(m), Description: m.Description()})
	}
	s.jsonResponse(w, r, http.StatusOK, map[string]any{"methods": out})
}

// pipelineID parses the {id} URL parameter, writing a 400 when it is not a UUID
func (s *Server) pipelineID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "invalid pipeline id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

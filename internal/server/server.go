package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vanguard-ai/vanguard/internal/metrics"
	"github.com/vanguard-ai/vanguard/internal/pipeline"
	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// maxBatch bounds the batch endpoint; larger arrays are rejected, not split.
const maxBatch = 100

// Server wraps the HTTP surface for Vanguard.
type Server struct {
	mux      *http.ServeMux
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
}

// New creates a server with all routes registered.
func New(p *pipeline.Pipeline, m *metrics.Metrics) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		pipeline: p,
		metrics:  m,
	}

	s.mux.HandleFunc("/v1/inspect", s.handleInspect)
	s.mux.HandleFunc("/v1/inspect/batch", s.handleInspectBatch)
	s.mux.HandleFunc("/v1/reload", s.handleReload)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", m.Handler())

	return s
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	redact.Logf("Vanguard running on %s", addr)
	return srv.ListenAndServe()
}

// --- Request/response types ---

type inspectRequest struct {
	Text    string            `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

type inspectResponse struct {
	verdict.Verdict
	RequestID string `json:"request_id"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// --- Handlers ---

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if reqBody.Text == "" {
		writeError(w, http.StatusBadRequest, "missing text", "invalid_request")
		return
	}
	if !utf8.ValidString(reqBody.Text) {
		writeError(w, http.StatusBadRequest, "text is not valid UTF-8", "invalid_request")
		return
	}

	requestID := uuid.NewString()
	v := s.pipeline.Evaluate(r.Context(), pipeline.Request{
		Text:          reqBody.Text,
		Context:       reqBody.Context,
		CorrelationID: requestID,
	})

	writeJSON(w, http.StatusOK, inspectResponse{Verdict: v, RequestID: requestID})
}

func (s *Server) handleInspectBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqs []inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body (expected an array)", "invalid_request")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch", "invalid_request")
		return
	}
	if len(reqs) > maxBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d requests", maxBatch), "invalid_request")
		return
	}
	for i, rq := range reqs {
		if rq.Text == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing text at index %d", i), "invalid_request")
			return
		}
		if !utf8.ValidString(rq.Text) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("text at index %d is not valid UTF-8", i), "invalid_request")
			return
		}
	}

	// Requests are independent; evaluate them concurrently but return
	// verdicts in input order.
	out := make([]inspectResponse, len(reqs))
	g, ctx := errgroup.WithContext(r.Context())
	for i, rq := range reqs {
		g.Go(func() error {
			requestID := uuid.NewString()
			v := s.pipeline.Evaluate(ctx, pipeline.Request{
				Text:          rq.Text,
				Context:       rq.Context,
				CorrelationID: requestID,
			})
			out[i] = inspectResponse{Verdict: v, RequestID: requestID}
			return nil
		})
	}
	// Evaluate never returns an error; the group is used for fan-out and
	// context propagation only.
	_ = g.Wait()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.pipeline.Reload(ctx); err != nil {
		redact.Logf("reload failed, keeping current snapshot: %v", err)
		writeError(w, http.StatusUnprocessableEntity, "reload failed: "+err.Error(), "policy_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.pipeline.SnapshotVersion(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Health())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		redact.Logf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Message: message,
			Type:    typ,
		},
	})
}

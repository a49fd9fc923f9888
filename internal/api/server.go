// Package api is the HTTP front door: submit a batch, read its status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jin09/BulkMail/internal/batch"
	"github.com/jin09/BulkMail/internal/dispatch"
	"github.com/jin09/BulkMail/internal/health"
	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/results"
)

// Submitter accepts a validated batch and returns its id.
type Submitter interface {
	Submit(ctx context.Context, req batch.Request) (string, error)
}

// StatusReader reports the state of a submitted batch.
type StatusReader interface {
	Status(ctx context.Context, batchID string) (dispatch.BatchStatus, error)
}

// submitRequest is the wire shape of a batch submission.
type submitRequest struct {
	Recipients      []string                     `json:"recipients" validate:"required,min=1,dive,email"`
	Subject         string                       `json:"subject"`
	Body            string                       `json:"body"`
	Defaults        map[string]string            `json:"defaults,omitempty"`
	Personalization map[string]map[string]string `json:"personalization,omitempty"`
}

type submitResponse struct {
	BatchID string `json:"batch_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the batch API.
type Server struct {
	dispatcher Submitter
	aggregator StatusReader
	check      health.CheckFunc
	validate   *validator.Validate
	logger     *logging.Logger
	router     chi.Router
}

func NewServer(dispatcher Submitter, aggregator StatusReader, check health.CheckFunc, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("bulkmail-api")
	}
	s := &Server{
		dispatcher: dispatcher,
		aggregator: aggregator,
		check:      check,
		validate:   validator.New(),
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Get("/healthz", health.HTTPHandler(check))
	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{batchID}", s.handleStatus)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationDetail(err)})
		return
	}

	batchID, err := s.dispatcher.Submit(r.Context(), batch.Request{
		Recipients:      req.Recipients,
		Subject:         req.Subject,
		Body:            req.Body,
		Defaults:        req.Defaults,
		Personalization: req.Personalization,
	})
	if err != nil {
		var verr *batch.ValidationError
		var derr *dispatch.DispatchError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
		case errors.As(err, &derr):
			s.logger.WithContext(r.Context()).WithError(err).Error("batch submission failed")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "task queue unavailable, try again later"})
		default:
			s.logger.WithContext(r.Context()).WithError(err).Error("batch submission failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{BatchID: batchID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	st, err := s.aggregator.Status(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, results.ErrBatchNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "batch not found"})
			return
		}
		s.logger.WithContext(r.Context()).WithBatch(batchID).WithError(err).Error("status lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// validationDetail extracts the first field failure into a short message.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "email" {
			return "recipients: malformed address"
		}
		return "recipients: must not be empty"
	}
	return "invalid request"
}

// requestID echoes the caller's X-Request-ID, minting one if absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the API until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

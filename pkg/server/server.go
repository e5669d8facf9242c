// Package server is the REST/JSON adapter in front of the engine. It
// validates typed per-operation requests at the boundary, resolves the
// caller's principal from the verified bearer token and maps engine
// errors to external responses. Access-denied and key-not-found
// failures share one external "not found" shape so the existence of
// other tenants' resources never leaks.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/s3gate/s3gate/pkg/catalog"
	"github.com/s3gate/s3gate/pkg/credentials"
	"github.com/s3gate/s3gate/pkg/identity"
	"github.com/s3gate/s3gate/pkg/metrics"
	"github.com/s3gate/s3gate/pkg/scope"
	"github.com/s3gate/s3gate/pkg/store"
	"github.com/s3gate/s3gate/pkg/upload"
)

// Server wires the engine components behind HTTP routes.
type Server struct {
	catalog  *catalog.Catalog
	broker   *credentials.Broker
	keys     *credentials.KeyManager
	uploads  *upload.Coordinator
	verifier *identity.Verifier
	metrics  *metrics.Metrics
	log      *logrus.Logger
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithMetrics attaches a metrics registry and enables /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the application logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a server over the engine components.
func New(cat *catalog.Catalog, broker *credentials.Broker, keys *credentials.KeyManager, uploads *upload.Coordinator, verifier *identity.Verifier, opts ...Option) *Server {
	s := &Server{
		catalog:  cat,
		broker:   broker,
		keys:     keys,
		uploads:  uploads,
		verifier: verifier,
		log:      logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(s.verifier.Middleware))

	api.HandleFunc("/s3/list", s.handleList).Methods(http.MethodPost)
	api.HandleFunc("/s3/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/s3/folder", s.handleCreateFolder).Methods(http.MethodPost)
	api.HandleFunc("/s3/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/s3/metadata", s.handleMetadata).Methods(http.MethodGet)
	api.HandleFunc("/s3/object", s.handleDeleteObject).Methods(http.MethodDelete)
	api.HandleFunc("/s3/delete-batch", s.handleDeleteBatch).Methods(http.MethodPost)

	api.HandleFunc("/s3/multipart/initiate", s.handleInitiateUpload).Methods(http.MethodPost)
	api.HandleFunc("/s3/multipart/part", s.handleUploadPart).Methods(http.MethodPost)
	api.HandleFunc("/s3/multipart/complete", s.handleCompleteUpload).Methods(http.MethodPost)
	api.HandleFunc("/s3/multipart/abort", s.handleAbortUpload).Methods(http.MethodPost)

	api.HandleFunc("/credentials/temporary", s.handleTemporaryCredentials).Methods(http.MethodPost)
	api.HandleFunc("/credentials/access-key", s.handleCreateKey).Methods(http.MethodPost)
	api.HandleFunc("/credentials/access-keys", s.handleListKeys).Methods(http.MethodGet)
	api.HandleFunc("/credentials/access-key/{keyId}/status", s.handleSetKeyStatus).Methods(http.MethodPut)
	api.HandleFunc("/credentials/access-key/{keyId}", s.handleDeleteKey).Methods(http.MethodDelete)
	api.HandleFunc("/credentials/access-key/rotate", s.handleRotateKey).Methods(http.MethodPost)

	var handler http.Handler = r
	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}
	return handler
}

// principal resolves the verified caller from the request context. The
// identity middleware guarantees it is present on /api routes.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal, ok := identity.PrincipalFrom(r.Context())
	if !ok {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized", "could not validate credentials")
		return "", false
	}
	return principal, true
}

// decode parses and validates a typed request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "MalformedRequest", "invalid request body")
		return false
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}

// errorResponse writes a JSON error response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorBody{Code: code, Message: message})
}

// engineError maps an engine error to its external response. The
// external detail for denied access and foreign key ids is the same
// "not found" shape by design.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if errors.Is(err, scope.ErrAccessDenied) && s.metrics != nil {
		s.metrics.AccessDenied()
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	s.errorResponse(w, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, scope.ErrInvalidPrincipal):
		return http.StatusBadRequest, "InvalidPrincipal", "invalid principal"
	case errors.Is(err, scope.ErrAccessDenied),
		errors.Is(err, credentials.ErrKeyNotFound),
		errors.Is(err, store.ErrObjectNotFound):
		return http.StatusNotFound, "NotFound", "resource not found"
	case errors.Is(err, credentials.ErrInvalidDuration):
		return http.StatusBadRequest, "InvalidDuration", err.Error()
	case errors.Is(err, credentials.ErrInvalidKeyStatus):
		return http.StatusBadRequest, "InvalidStatus", err.Error()
	case errors.Is(err, credentials.ErrIssuanceFailed):
		return http.StatusBadGateway, "CredentialIssuanceFailed", "failed to issue credentials"
	case errors.Is(err, upload.ErrSessionNotFound):
		return http.StatusNotFound, "SessionNotFound", "upload session not found"
	case errors.Is(err, upload.ErrPartMismatch):
		return http.StatusConflict, "PartMismatch", err.Error()
	case errors.Is(err, store.ErrInvalidPart):
		return http.StatusBadRequest, "InvalidPart", "invalid part"
	default:
		return http.StatusInternalServerError, "InternalError", "internal error"
	}
}

// errorKind is the per-key error label used in batch delete results.
func errorKind(err error) string {
	switch {
	case errors.Is(err, scope.ErrAccessDenied):
		return "AccessDenied"
	case errors.Is(err, scope.ErrInvalidPrincipal):
		return "InvalidPrincipal"
	case errors.Is(err, store.ErrObjectNotFound):
		return "NotFound"
	default:
		return "InternalError"
	}
}

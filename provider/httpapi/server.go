// Package httpapi exposes a capability provider over HTTP and provides the
// matching client. The wire contract is one POST per ability call with the
// payload and a state snapshot, plus a liveness endpoint, so a provider can
// be moved out of process without touching the runtime.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/caseflow-dev/caseflow/provider"
)

// errorKindApplication tags application-level rejections on the wire so the
// client can distinguish them from transport failures.
const errorKindApplication = "application"

type invokeRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
	State   map[string]any `json:"state,omitempty"`
}

type invokeResponse struct {
	Fields map[string]any `json:"fields"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type healthResponse struct {
	Provider string          `json:"provider"`
	Status   provider.Status `json:"status"`
}

// Server serves one provider's abilities over HTTP.
type Server struct {
	provider provider.Provider
	logger   *logrus.Logger
}

// NewServer wraps a provider. A nil logger disables request logging.
func NewServer(p provider.Provider, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Server{provider: p, logger: logger}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/abilities/{ability}", s.handleInvoke)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ability := chi.URLParam(r, "ability")

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	fields, err := s.provider.Invoke(r.Context(), ability, req.Payload, req.State)
	if err != nil {
		if provider.IsApplication(err) {
			s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error: err.Error(),
				Kind:  errorKindApplication,
			})
			return
		}
		s.logger.WithError(err).WithField("ability", ability).Error("ability invocation failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	s.writeJSON(w, http.StatusOK, invokeResponse{Fields: fields})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.provider.Health(r.Context())
	code := http.StatusOK
	if status == provider.StatusDown {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{Provider: s.provider.Name(), Status: status})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("write response")
	}
}

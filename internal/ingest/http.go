package ingest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Bodies larger than this are rejected before decoding.
const maxBodyBytes = 8 << 20

// HTTPHandler exposes the ingestion endpoints.
type HTTPHandler struct {
	service *Service
	logger  *zap.Logger
	tracer  trace.Tracer
	router  chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger) *HTTPHandler {
	h := &HTTPHandler{
		service: service,
		logger:  logger,
		tracer:  otel.Tracer("floodgate/ingest"),
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Post("/events", h.handleEvents)
	r.Method(http.MethodGet, "/metrics", h.service.Metrics().Handler())

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   FormatTimestamp(time.Now()),
	})
}

// handleEvents accepts a single JSON object or an array of JSON objects.
// A well-formed body always gets a 200: when the queue fills mid-batch the
// response reports accepted < submitted instead of an error status.
func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "ingest.events")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read body: "+err.Error())
		return
	}

	decoded, err := DecodeRequestBody(body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	events := decoded.Events()
	resp := h.service.Ingest(events)

	span.SetAttributes(
		attribute.Int("ingest.submitted", len(events)),
		attribute.Int("ingest.accepted", resp.Accepted),
		attribute.Int("ingest.queue_depth", resp.QueuedSize),
	)

	if resp.Accepted < len(events) {
		h.logger.Debug("batch partially rejected",
			zap.Int("submitted", len(events)),
			zap.Int("accepted", resp.Accepted),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeDetail mirrors the wire contract for client errors: {"detail": msg}.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"detail": msg,
	})
}

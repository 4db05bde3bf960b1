// Package api exposes the observer and publisher over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/airblackbox/runtime-aibom-emitter/internal/bom"
	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
	"github.com/airblackbox/runtime-aibom-emitter/internal/ledger"
	"github.com/airblackbox/runtime-aibom-emitter/internal/observer"
	"github.com/airblackbox/runtime-aibom-emitter/internal/publisher"
)

const (
	// ServiceName is reported by the health route.
	ServiceName = "runtime-aibom-emitter"
	// DefaultExportPath is used when the export route gets no filepath.
	DefaultExportPath = "/tmp/emissions.json"
	// DefaultObserveLimit is used when the observe route gets no limit.
	DefaultObserveLimit = 100
)

// Ledger is the subset of the delivery ledger the API reads and writes.
type Ledger interface {
	ListDeliveries(f ledger.DeliveryFilter) ([]ledger.DeliveryRecord, error)
	RecordExport(path string, count int) error
}

// Options configures a Server.
type Options struct {
	Ledger  Ledger // optional
	Version string
}

// Server routes HTTP requests to one Observer and one Publisher.
type Server struct {
	observer  *observer.Observer
	publisher *publisher.Publisher
	opts      Options
}

// New creates a Server.
func New(obs *observer.Observer, pub *publisher.Publisher, opts Options) *Server {
	return &Server{observer: obs, publisher: pub, opts: opts}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/emit", s.handleEmit)
	mux.HandleFunc("POST /v1/observe", s.handleObserve)
	mux.HandleFunc("GET /v1/summary/{agent_id}", s.handleSummary)
	mux.HandleFunc("GET /v1/emissions", s.handleEmissions)
	mux.HandleFunc("POST /v1/publish", s.handlePublish)
	mux.HandleFunc("POST /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/aibom/{agent_id}", s.handleAIBOM)
	mux.HandleFunc("GET /v1/deliveries", s.handleDeliveries)
	return logRequests(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("API: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"service":             ServiceName,
		"version":             s.opts.Version,
		"emissions_collected": s.publisher.Count(),
	})
}

// emitRequest marks required fields as pointers: absent is rejected, empty
// strings are accepted.
type emitRequest struct {
	EmissionType     string  `json:"emission_type"`
	AgentID          *string `json:"agent_id"`
	ComponentName    *string `json:"component_name"`
	ComponentVersion string  `json:"component_version"`
	Provider         string  `json:"provider"`
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == nil || req.ComponentName == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "agent_id and component_name are required")
		return
	}
	typ, err := emission.ParseType(req.EmissionType)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid emission type: "+req.EmissionType)
		return
	}
	e := emission.New(typ, *req.AgentID, *req.ComponentName, req.ComponentVersion, req.Provider)
	e.ID = emission.NewID()
	s.publisher.Collect(e)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID := q.Get("agent_id")
	if agentID == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "agent_id is required")
		return
	}
	limit := DefaultObserveLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	emissions, err := s.observer.ObserveEpisodes(r.Context(), agentID, limit)
	if err != nil {
		slog.Warn("API: observe failed", "agent_id", agentID, "error", err)
		writeDetail(w, http.StatusBadGateway, err.Error())
		return
	}
	s.publisher.CollectBatch(emissions)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":            agentID,
		"emissions_generated": len(emissions),
		"total_collected":     s.publisher.Count(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.observer.Summary(r.PathValue("agent_id")))
}

func (s *Server) handleEmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := emission.Filter{AgentID: q.Get("agent_id")}
	if v := q.Get("emission_type"); v != "" {
		// Unknown types are ignored rather than rejected.
		if typ, err := emission.ParseType(v); err == nil {
			f.Type = typ
		}
	}
	list := s.publisher.Emissions(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(list),
		"emissions": list,
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	targetID := q.Get("aibom_id")
	if targetID == "" {
		writeDetail(w, http.StatusBadRequest, "aibom_id is required")
		return
	}
	writeJSON(w, http.StatusOK, s.publisher.Publish(r.Context(), targetID, q.Get("agent_id")))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("filepath")
	if path == "" {
		path = DefaultExportPath
	}
	n, err := s.publisher.ExportSnapshot(path)
	if err != nil {
		slog.Error("API: export failed", "path", path, "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.opts.Ledger != nil {
		if err := s.opts.Ledger.RecordExport(path, n); err != nil {
			slog.Warn("API: ledger export record failed", "path", path, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exported": true,
		"filepath": path,
		"count":    n,
	})
}

func (s *Server) handleAIBOM(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	list := s.publisher.Emissions(emission.Filter{AgentID: agentID})
	writeJSON(w, http.StatusOK, bom.FromEmissions(agentID, s.opts.Version, list))
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "deliveries": []ledger.DeliveryRecord{}})
		return
	}
	q := r.URL.Query()
	f := ledger.DeliveryFilter{AIBOMID: q.Get("aibom_id"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	rows, err := s.opts.Ledger.ListDeliveries(f)
	if err != nil {
		slog.Error("API: list deliveries failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []ledger.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "deliveries": rows})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("API: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("API: encode response failed", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

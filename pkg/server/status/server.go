// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package status serves the process metrics and the scheduler state over
// HTTP.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sparrowsql/sparrow/pkg/sql/scheduler"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/metric"
	"github.com/sparrowsql/sparrow/pkg/util/stop"
)

const (
	// MetricsPath serves the registry in the Prometheus exposition format.
	MetricsPath = "/metrics"
	// JSONMetricsPath serves the registry as a JSON object.
	JSONMetricsPath = "/jsonmetrics"
	// VarsPath serves the registry as "name:value" lines.
	VarsPath = "/_status/vars"
	// HostsPath serves the backends known to the scheduler.
	HostsPath = "/_status/hosts"
	// SchedulePath resolves the "loc" query parameters to backends.
	SchedulePath = "/_status/schedule"
	// HeartbeatPath accepts backend heartbeats.
	HeartbeatPath = "/_status/heartbeat"
)

const shutdownTimeout = 5 * time.Second

// Config holds the collaborators of a Server. Only Registry is required;
// the scheduler routes are registered when their collaborator is set.
type Config struct {
	Registry  *metric.Registry
	Scheduler scheduler.Scheduler
	Liveness  *scheduler.Liveness
}

// Server is the status HTTP handler.
type Server struct {
	cfg      Config
	exporter *metric.PrometheusExporter
	router   *mux.Router
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		exporter: metric.MakePrometheusExporter(),
		router:   mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	routes := []struct {
		path    string
		method  string
		handler http.HandlerFunc
		enabled bool
	}{
		{MetricsPath, http.MethodGet, s.handleMetrics, true},
		{JSONMetricsPath, http.MethodGet, s.handleJSONMetrics, true},
		{VarsPath, http.MethodGet, s.handleVars, true},
		{HostsPath, http.MethodGet, s.handleHosts, s.cfg.Scheduler != nil},
		{SchedulePath, http.MethodGet, s.handleSchedule, s.cfg.Scheduler != nil},
		{HeartbeatPath, http.MethodPost, s.handleHeartbeat, s.cfg.Liveness != nil},
	}
	for _, r := range routes {
		if r.enabled {
			s.router.HandleFunc(r.path, r.handler).Methods(r.method)
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on addr until the stopper quiesces. It returns the address
// listened on, which differs from addr when addr has port 0.
func (s *Server) Start(ctx context.Context, stopper *stop.Stopper, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if err := stopper.RunAsyncTask(ctx, "status-server", func(ctx context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf(ctx, "status server: %v", err)
		}
	}); err != nil {
		_ = ln.Close()
		return nil, err
	}
	if err := stopper.RunAsyncTask(ctx, "status-server-shutdown", func(ctx context.Context) {
		<-stopper.ShouldQuiesce()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf(ctx, "status server shutdown: %v", err)
		}
	}); err != nil {
		_ = srv.Close()
		return nil, err
	}
	log.Infof(ctx, "status server listening on %s", ln.Addr())
	return ln.Addr(), nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.exporter.ScrapeRegistry(s.cfg.Registry)
	promhttp.HandlerFor(s.exporter, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleJSONMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.cfg.Registry.WriteJSON(w); err != nil {
		log.Warningf(r.Context(), "writing %s: %v", JSONMetricsPath, err)
	}
}

func (s *Server) handleVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.cfg.Registry.WriteText(w); err != nil {
		log.Warningf(r.Context(), "writing %s: %v", VarsPath, err)
	}
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.cfg.Scheduler.GetAllKnownHosts(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSONResponse(r.Context(), w, http.StatusOK, hostStrings(hosts))
}

// ScheduleEntry is an element of the SchedulePath response.
type ScheduleEntry struct {
	Location string   `json:"location"`
	Hosts    []string `json:"hosts"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	locs, err := scheduler.ParseHostPorts(r.URL.Query()["loc"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.cfg.Scheduler.GetHosts(r.Context(), locs)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	entries := make([]ScheduleEntry, len(locs))
	for i, loc := range locs {
		entries[i] = ScheduleEntry{Location: loc.String(), Hosts: hostStrings(res[i])}
	}
	writeJSONResponse(r.Context(), w, http.StatusOK, entries)
}

// HeartbeatRequest is the body of a HeartbeatPath request.
type HeartbeatRequest struct {
	Addr    string   `json:"addr"`
	Aliases []string `json:"aliases,omitempty"`
}

// HeartbeatResponse is the body of a HeartbeatPath response.
type HeartbeatResponse struct {
	Joined bool `json:"joined"`
	// TTL is the time within which the next heartbeat must arrive.
	TTL string `json:"ttl"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid heartbeat: "+err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := scheduler.ParseHostPort(req.Addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	joined := s.cfg.Liveness.Heartbeat(r.Context(), scheduler.Backend{Addr: addr, Aliases: req.Aliases})
	writeJSONResponse(r.Context(), w, http.StatusOK, HeartbeatResponse{
		Joined: joined,
		TTL:    s.cfg.Liveness.TTL().String(),
	})
}

func hostStrings(l scheduler.HostList) []string {
	res := make([]string, len(l))
	for i, hp := range l {
		res[i] = hp.String()
	}
	return res
}

// writeError maps scheduler errors to HTTP status codes.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrSchedulingUnavailable),
		errors.Is(err, scheduler.ErrNotInitialized),
		errors.Is(err, scheduler.ErrClosed):
		code = http.StatusServiceUnavailable
	default:
		log.Errorf(ctx, "status request failed: %v", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSONResponse(ctx context.Context, w http.ResponseWriter, code int, payload interface{}) {
	res, err := json.Marshal(payload)
	if err != nil {
		log.Errorf(ctx, "encoding response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(res); err != nil {
		log.Warningf(ctx, "writing response: %v", err)
	}
}

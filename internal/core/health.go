package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status          string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds   int64  `json:"uptime_seconds"`
	SourceRunning   bool   `json:"source_running"`
	SourceDone      bool   `json:"source_done"`
	MQTTConnected   bool   `json:"mqtt_connected"`
	MQTTEnabled     bool   `json:"mqtt_enabled"`
	BitmapsShown    uint64 `json:"bitmaps_shown"`
	DecodeFailures  uint64 `json:"decode_failures"`
	LastBitmapAgeMS int64  `json:"last_bitmap_age_ms,omitempty"`
}

// HealthCheck returns the current health status of the service
func (s *Service) HealthCheck() HealthStatus {
	s.mu.RLock()
	running := s.isRunning
	started := s.started
	s.mu.RUnlock()

	ss := s.source.Stats()
	ws := s.widget.Stats()

	status := HealthStatus{
		Status:         "healthy",
		SourceRunning:  ss.Running,
		SourceDone:     ss.Done,
		MQTTEnabled:    s.emitter != nil,
		BitmapsShown:   ws.DecodesSucceeded,
		DecodeFailures: ws.TotalFailures(),
	}
	if running {
		status.UptimeSeconds = int64(time.Since(started).Seconds())
	}
	if !ws.LastBitmapAt.IsZero() {
		status.LastBitmapAgeMS = time.Since(ws.LastBitmapAt).Milliseconds()
	}
	if s.emitter != nil {
		status.MQTTConnected = s.emitter.Stats().Connected
	}

	// Determine overall health status
	switch {
	case !running:
		status.Status = "unhealthy"
	case !ss.Running || ss.Done || (status.MQTTEnabled && !status.MQTTConnected):
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler handles /health
func (s *Service) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// StatusHandler handles /status with the full status document
func (s *Service) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// HealthAddr is the configured health listen address; empty disables it.
func (s *Service) HealthAddr() string {
	return s.cfg.Health.Addr
}

// Handler returns the health mux.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/status", s.StatusHandler)
	return mux
}

// StartHealthServer starts the HTTP health server on addr. Non-blocking;
// the server stops on Shutdown.
func (s *Service) StartHealthServer(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	slog.Info("starting health check server",
		"addr", addr,
		"endpoints", []string{"/health", "/status"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()
	return nil
}

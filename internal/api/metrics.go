package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/chardev-core/internal/iometrics"
)

// SystemMetrics is the GET /metrics response.
type SystemMetrics struct {
	Timestamp     string                  `json:"timestamp"`
	Version       string                  `json:"version"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Runtime       RuntimeMetrics          `json:"runtime"`
	Registry      RegistryMetrics         `json:"registry"`
	MQTT          *MQTTMetrics            `json:"mqtt,omitempty"`
	IO            []iometrics.DeviceStats `json:"io,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// RegistryMetrics summarises the device registry.
type RegistryMetrics struct {
	Ready       bool `json:"ready"`
	Devices     int  `json:"devices"`
	Available   int  `json:"available"`
	OpenHandles int  `json:"open_handles"`
	APIHandles  int  `json:"api_handles"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Registry: RegistryMetrics{
			Ready:       s.registry.Ready(),
			Devices:     s.registry.Count(),
			OpenHandles: s.registry.OpenHandles(),
			APIHandles:  len(s.handles.list()),
		},
	}

	for _, d := range s.registry.Devices() {
		if d.Available {
			metrics.Registry.Available++
		}
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.metrics != nil {
		metrics.IO = s.metrics.Snapshot()
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleDeviceIO returns the IO counters for one minor.
func (s *Server) handleDeviceIO(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeUnavailable(w, "io metrics not enabled")
		return
	}
	minor, err := strconv.Atoi(chi.URLParam(r, "minor"))
	if err != nil {
		writeBadRequest(w, "minor must be an integer")
		return
	}
	if minor < 0 || minor >= s.registry.Count() {
		writeNotFound(w, "minor out of range")
		return
	}

	stats, ok := s.metrics.Device(minor)
	if !ok {
		stats = iometrics.DeviceStats{Minor: minor}
	}
	writeJSON(w, http.StatusOK, stats)
}

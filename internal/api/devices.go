package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// handleListDevices returns a snapshot of every minor.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	if !s.registry.Ready() {
		writeDeviceError(w, chardev.ErrNotInitialized)
		return
	}
	devices := s.registry.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"class":    s.registry.ClassName(),
		"capacity": s.registry.Capacity(),
		"devices":  devices,
		"count":    len(devices),
	})
}

// handleGetDevice returns one minor.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	minor, ok := parseMinor(w, r)
	if !ok {
		return
	}

	info, err := s.registry.Device(minor)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleOpen opens a new handle on a minor. The handle stays open until
// DELETE /handles/{id} or server shutdown.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	minor, ok := parseMinor(w, r)
	if !ok {
		return
	}

	h, err := s.registry.Open(minor)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.handles.add(h)

	writeJSON(w, http.StatusCreated, describeHandle(h))
}

// parseMinor reads the {minor} URL parameter, writing a 400 on failure.
func parseMinor(w http.ResponseWriter, r *http.Request) (int, bool) {
	minor, err := strconv.Atoi(chi.URLParam(r, "minor"))
	if err != nil {
		writeBadRequest(w, "minor must be an integer")
		return 0, false
	}
	return minor, true
}

package api

import "net/http"

// handleListNodes returns the nodes currently published for the registry's
// class, as recorded by the visibility layer.
func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	if s.nodes == nil {
		writeUnavailable(w, "node table not available")
		return
	}
	entries := s.nodes.List(s.registry.ClassName())
	writeJSON(w, http.StatusOK, map[string]any{"nodes": entries, "count": len(entries)})
}

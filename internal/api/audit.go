package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/chardev-core/internal/audit"
)

// handleListAuditLogs returns paginated lifecycle audit entries.
//
// Query parameters:
//   - kind: event kind (opened, released, node_published, ...)
//   - minor: device minor
//   - handle: handle ID
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit logging not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:     q.Get("kind"),
		HandleID: q.Get("handle"),
	}
	if v := q.Get("minor"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "minor must be an integer")
			return
		}
		filter.Minor = &n
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

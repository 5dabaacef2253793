package api

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// HeaderOffset carries the handle's read cursor after a read.
const HeaderOffset = "X-Offset"

// HandleInfo describes one open handle.
type HandleInfo struct {
	ID     string `json:"handle"`
	Minor  int    `json:"minor"`
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
}

// IoctlRequest is the body of POST /handles/{id}/ioctl.
type IoctlRequest struct {
	Cmd uint    `json:"cmd"`
	Arg uintptr `json:"arg"`
}

func describeHandle(h *chardev.Handle) HandleInfo {
	return HandleInfo{
		ID:     h.ID(),
		Minor:  h.Minor(),
		Name:   h.Name(),
		Offset: h.Offset(),
	}
}

// handleTable holds handles opened over HTTP, keyed by handle ID.
type handleTable struct {
	mu      sync.Mutex
	handles map[string]*chardev.Handle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[string]*chardev.Handle)}
}

func (t *handleTable) add(h *chardev.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[h.ID()] = h
}

func (t *handleTable) get(id string) (*chardev.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	return h, ok
}

// take removes and returns the handle so only one caller can release it.
func (t *handleTable) take(id string) (*chardev.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	if ok {
		delete(t.handles, id)
	}
	return h, ok
}

func (t *handleTable) list() []*chardev.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := slices.Collect(maps.Values(t.handles))
	slices.SortFunc(out, func(a, b *chardev.Handle) int {
		if a.Minor() != b.Minor() {
			return a.Minor() - b.Minor()
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

// releaseAll releases and forgets every handle, returning how many there were.
func (t *handleTable) releaseAll() int {
	t.mu.Lock()
	handles := t.handles
	t.handles = make(map[string]*chardev.Handle)
	t.mu.Unlock()

	for _, h := range handles {
		h.Release() //nolint:errcheck // Already-released handles are fine here
	}
	return len(handles)
}

// lookupHandle resolves {id}, writing a 404 when it is unknown.
func (s *Server) lookupHandle(w http.ResponseWriter, r *http.Request) (*chardev.Handle, bool) {
	h, ok := s.handles.get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "handle not found")
		return nil, false
	}
	return h, true
}

func (s *Server) handleListHandles(w http.ResponseWriter, _ *http.Request) {
	handles := s.handles.list()
	out := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, describeHandle(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"handles": out, "count": len(out)})
}

func (s *Server) handleGetHandle(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupHandle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeHandle(h))
}

// handleRead reads up to ?max bytes (default: device capacity) from the
// handle's offset. The body is the raw bytes; at end-of-data the response
// is 204 with no body.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupHandle(w, r)
	if !ok {
		return
	}

	maxBytes := s.registry.Capacity()
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "max must be a non-negative integer")
			return
		}
		maxBytes = min(n, s.registry.Capacity())
	}

	buf := make([]byte, maxBytes)
	n, err := h.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		writeDeviceError(w, err)
		return
	}

	w.Header().Set(HeaderOffset, strconv.FormatInt(h.Offset(), 10))
	if n == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	w.Write(buf[:n]) //nolint:errcheck // Best-effort write to response
}

// handleWrite replaces the device contents with the request body. Bodies
// longer than the device holds are truncated, as with any write. When the
// client announces a Content-Length the bytes are pulled with WriteFrom, so
// a body that ends early is a transfer fault and the device is unchanged.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupHandle(w, r)
	if !ok {
		return
	}

	var (
		n   int
		err error
	)
	if r.ContentLength >= 0 {
		n, err = h.WriteFrom(r.Body, int(min(r.ContentLength, int64(s.registry.Capacity()))))
	} else {
		var body []byte
		body, err = io.ReadAll(io.LimitReader(r.Body, int64(s.registry.Capacity())))
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeTransferFault, "reading request body failed")
			return
		}
		n, err = h.Write(body)
	}
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"written": n})
}

func (s *Server) handleIoctl(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupHandle(w, r)
	if !ok {
		return
	}

	var req IoctlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	status, err := h.Ioctl(req.Cmd, req.Arg)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	h, ok := s.handles.take(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "handle not found")
		return
	}
	if err := h.Release(); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

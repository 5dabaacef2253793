package chardev

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is one open of a device. It holds a non-owning reference to the
// Instance chosen at open time and a read cursor private to this handle.
//
// Handle.Read follows io.Reader, so io.ReadAll and io.Copy work on it.
// Handle.Write truncates silently at Capacity-1 bytes, which is the device
// contract but not the io.Writer short-write contract.
type Handle struct {
	id  string
	dev *Instance
	reg *Registry

	mu       sync.Mutex
	offset   int64
	released bool
}

func newHandle(reg *Registry, dev *Instance) *Handle {
	return &Handle{
		id:  uuid.NewString(),
		dev: dev,
		reg: reg,
	}
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Minor returns the minor of the device this handle was opened on.
func (h *Handle) Minor() int { return h.dev.Minor() }

// Name returns the node name of the device this handle was opened on.
func (h *Handle) Name() string { return h.dev.Name() }

// Offset returns the current read cursor.
func (h *Handle) Offset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Read copies up to len(dst) valid bytes starting at the handle's offset and
// advances the offset by the number copied. Once the offset reaches the
// device's valid length it returns 0, io.EOF on every call until a later
// write makes more data visible at that offset.
func (h *Handle) Read(dst []byte) (int, error) {
	n, err := h.read(dst)
	if n > 0 {
		h.emit(EventRead, n)
	}
	return n, err
}

func (h *Handle) read(dst []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, ErrHandleReleased
	}
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := h.dev.readAt(dst, h.offset)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	h.offset += int64(n)
	return n, nil
}

// ReadTo copies up to maxBytes valid bytes into caller storage w. If w
// rejects the bytes the call fails with ErrTransferFault and the offset is
// left where it was.
func (h *Handle) ReadTo(w io.Writer, maxBytes int) (int, error) {
	n, err := h.readTo(w, maxBytes)
	if n > 0 {
		h.emit(EventRead, n)
	}
	return n, err
}

func (h *Handle) readTo(w io.Writer, maxBytes int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, ErrHandleReleased
	}
	if maxBytes <= 0 {
		return 0, nil
	}

	scratch := make([]byte, min(maxBytes, h.dev.Capacity()))
	n, err := h.dev.readAt(scratch, h.offset)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	written, err := w.Write(scratch[:n])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFault, err)
	}
	if written != n {
		return 0, fmt.Errorf("%w: %w", ErrTransferFault, io.ErrShortWrite)
	}

	h.offset += int64(n)
	return n, nil
}

// Write replaces the device contents with the first min(len(src), C-1)
// bytes of src and returns that count. Excess input is dropped without
// error. Write does not read or move any handle's offset.
func (h *Handle) Write(src []byte) (int, error) {
	n, err := h.write(src)
	if err == nil {
		h.emit(EventWritten, n)
	}
	return n, err
}

func (h *Handle) write(src []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, ErrHandleReleased
	}
	return h.dev.store(src)
}

// WriteFrom reads min(count, C-1) bytes from caller storage r and stores
// them as the new device contents. The bytes are staged first; if r fails
// or runs short the call returns ErrTransferFault and the device keeps its
// previous contents.
func (h *Handle) WriteFrom(r io.Reader, count int) (int, error) {
	n, err := h.writeFrom(r, count)
	if err == nil {
		h.emit(EventWritten, n)
	}
	return n, err
}

func (h *Handle) writeFrom(r io.Reader, count int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return 0, ErrHandleReleased
	}

	staged := make([]byte, min(max(count, 0), h.dev.MaxPayload()))
	if _, err := io.ReadFull(r, staged); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFault, err)
	}
	return h.dev.store(staged)
}

// Ioctl is an extension point. No command is defined; every call succeeds
// with status 0.
func (h *Handle) Ioctl(cmd uint, arg uintptr) (int, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()

	if released {
		return 0, ErrHandleReleased
	}
	h.reg.logger.Debug("device ioctl", "name", h.dev.Name(), "handle", h.id, "cmd", cmd, "arg", arg)
	h.emit(EventIoctl, 0)
	return 0, nil
}

// Release discards the handle. The device and its contents are unaffected.
// Releasing twice returns ErrHandleReleased.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrHandleReleased
	}
	h.released = true
	h.mu.Unlock()

	h.reg.handleReleased(h)
	h.emit(EventReleased, 0)
	return nil
}

// Close implements io.Closer by releasing the handle.
func (h *Handle) Close() error {
	return h.Release()
}

func (h *Handle) emit(kind EventKind, n int) {
	h.reg.observer.Observe(Event{
		Kind:     kind,
		Class:    h.reg.cfg.ClassName,
		Minor:    h.dev.Minor(),
		Name:     h.dev.Name(),
		HandleID: h.id,
		Bytes:    n,
		At:       time.Now().UTC(),
	})
}

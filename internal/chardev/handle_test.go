package chardev

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
)

// readAll drains h with reads of at most chunk bytes.
func readAll(t *testing.T, h *Handle, chunk int) []byte {
	t.Helper()

	var out []byte
	buf := make([]byte, chunk)
	for {
		n, err := h.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
}

func TestScenario_HelloOnTwoDevices(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	w, err := reg.Open(0)
	if err != nil {
		t.Fatalf("Open(0) error = %v", err)
	}
	n, err := w.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v; want 5, nil", n, err)
	}

	r, err := reg.Open(0)
	if err != nil {
		t.Fatalf("Open(0) error = %v", err)
	}
	buf := make([]byte, 10)
	n, err = r.Read(buf)
	if err != nil || n != 5 {
		t.Fatalf("Read() = %d, %v; want 5, nil", n, err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read() data = %q, want %q", buf[:n], "hello")
	}
	n, err = r.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("second Read() = %d, %v; want 0, EOF", n, err)
	}

	other, err := reg.Open(1)
	if err != nil {
		t.Fatalf("Open(1) error = %v", err)
	}
	n, err = other.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Read() on unwritten device = %d, %v; want 0, EOF", n, err)
	}
}

func TestScenario_TruncatesOversizedWrite(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}

	h, _ := reg.Open(0)
	n, err := h.Write(payload)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != DefaultCapacity-1 {
		t.Errorf("Write() = %d, want %d", n, DefaultCapacity-1)
	}

	info, _ := reg.Device(0)
	if info.Length != DefaultCapacity-1 {
		t.Errorf("stored length = %d, want %d", info.Length, DefaultCapacity-1)
	}

	r, _ := reg.Open(0)
	got := readAll(t, r, 1024)
	if !bytes.Equal(got, payload[:DefaultCapacity-1]) {
		t.Errorf("readback differs from first %d bytes of payload", DefaultCapacity-1)
	}
}

func TestWrite_ExactlyMaxPayload(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	h, _ := reg.Open(0)

	payload := bytes.Repeat([]byte{'x'}, DefaultCapacity-1)
	n, err := h.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("Write() = %d, %v; want %d, nil", n, err, len(payload))
	}
}

func TestWrite_RoundTripAnyLength(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	for _, size := range []int{0, 1, 2, 17, 128, 254, 255} {
		w, _ := reg.Open(0)
		data := bytes.Repeat([]byte{'a' + byte(size%26)}, size)
		if n, err := w.Write(data); err != nil || n != size {
			t.Fatalf("Write(%d bytes) = %d, %v", size, n, err)
		}

		r, _ := reg.Open(0)
		got := readAll(t, r, 7)
		if !bytes.Equal(got, data) {
			t.Errorf("size %d: read %d bytes, want %d", size, len(got), size)
		}
	}
}

func TestWrite_ReplacesNotAppends(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	h, _ := reg.Open(0)

	_, _ = h.Write([]byte("a much longer first message"))
	_, _ = h.Write([]byte("short"))

	r, _ := reg.Open(0)
	if got := string(readAll(t, r, 64)); got != "short" {
		t.Errorf("content = %q, want %q", got, "short")
	}

	// The terminator follows the valid bytes.
	dev := reg.instances[0]
	if dev.buf[5] != terminator {
		t.Errorf("buf[5] = %q, want terminator", dev.buf[5])
	}
}

func TestWrite_DoesNotMoveOffsets(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	_, _ = w.Write([]byte("0123456789"))

	r, _ := reg.Open(0)
	buf := make([]byte, 4)
	if n, _ := r.Read(buf); n != 4 {
		t.Fatalf("Read() = %d, want 4", n)
	}

	// A new, shorter write leaves the reader's stale offset in place.
	_, _ = w.Write([]byte("ab"))
	if r.Offset() != 4 {
		t.Errorf("reader offset = %d after write, want 4", r.Offset())
	}
	if w.Offset() != 0 {
		t.Errorf("writer offset = %d, want 0", w.Offset())
	}
	n, err := r.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Read() past new length = %d, %v; want 0, EOF", n, err)
	}

	// A longer write makes data visible at the stale offset.
	_, _ = w.Write([]byte("ABCDEFGH"))
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "EFGH" {
		t.Errorf("Read() = %q, %v; want %q", buf[:n], err, "EFGH")
	}
}

func TestRead_ChunkedEqualsWhole(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	data := []byte(strings.Repeat("the quick brown fox ", 12))[:240]
	_, _ = w.Write(data)

	whole, _ := reg.Open(0)
	buf := make([]byte, len(data))
	n, err := whole.Read(buf)
	if err != nil || n != len(data) {
		t.Fatalf("whole Read() = %d, %v", n, err)
	}

	for _, chunk := range []int{1, 3, 16, 100, 239} {
		r, _ := reg.Open(0)
		got := readAll(t, r, chunk)
		if !bytes.Equal(got, buf) {
			t.Errorf("chunk %d: concatenated reads differ from a single read", chunk)
		}
	}
}

func TestRead_EOFRepeats(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	_, _ = w.Write([]byte("xy"))

	r, _ := reg.Open(0)
	_ = readAll(t, r, 8)
	for i := range 5 {
		n, err := r.Read(make([]byte, 8))
		if n != 0 || !errors.Is(err, io.EOF) {
			t.Errorf("Read #%d past end = %d, %v; want 0, EOF", i, n, err)
		}
	}
	if r.Offset() != 2 {
		t.Errorf("offset = %d, want 2", r.Offset())
	}
}

func TestRead_EmptyDestination(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	_, _ = w.Write([]byte("data"))

	n, err := w.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
	if w.Offset() != 0 {
		t.Errorf("offset moved on empty read: %d", w.Offset())
	}
}

func TestRead_IOReadAll(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	_, _ = w.Write([]byte("via io.ReadAll"))

	r, _ := reg.Open(0)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if string(got) != "via io.ReadAll" {
		t.Errorf("io.ReadAll() = %q", got)
	}
}

func TestDevices_Independent(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	h1, _ := reg.Open(1)
	_, _ = h1.Write([]byte("device one"))

	h0, _ := reg.Open(0)
	_, _ = h0.Write([]byte("zero"))

	r1, _ := reg.Open(1)
	if got := string(readAll(t, r1, 4)); got != "device one" {
		t.Errorf("device 1 = %q, want %q", got, "device one")
	}
	info, _ := reg.Device(1)
	if info.Length != len("device one") {
		t.Errorf("device 1 length = %d", info.Length)
	}
}

// faultyWriter rejects every write.
type faultyWriter struct{}

func (faultyWriter) Write([]byte) (int, error) { return 0, errors.New("bad address") }

// shortWriter accepts only part of every write.
type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestReadTo(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	_, _ = w.Write([]byte("copy me out"))

	t.Run("copies and advances", func(t *testing.T) {
		r, _ := reg.Open(0)
		var buf bytes.Buffer
		n, err := r.ReadTo(&buf, 4)
		if err != nil || n != 4 || buf.String() != "copy" {
			t.Errorf("ReadTo() = %d, %v, %q", n, err, buf.String())
		}
		if r.Offset() != 4 {
			t.Errorf("offset = %d, want 4", r.Offset())
		}
	})

	t.Run("fault leaves offset", func(t *testing.T) {
		r, _ := reg.Open(0)
		n, err := r.ReadTo(faultyWriter{}, 4)
		if !errors.Is(err, ErrTransferFault) || n != 0 {
			t.Errorf("ReadTo() = %d, %v; want 0, ErrTransferFault", n, err)
		}
		if r.Offset() != 0 {
			t.Errorf("offset = %d after fault, want 0", r.Offset())
		}
	})

	t.Run("short write is a fault", func(t *testing.T) {
		r, _ := reg.Open(0)
		_, err := r.ReadTo(shortWriter{}, 8)
		if !errors.Is(err, ErrTransferFault) {
			t.Errorf("ReadTo() error = %v, want ErrTransferFault", err)
		}
		if !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("ReadTo() error = %v, want io.ErrShortWrite", err)
		}
	})

	t.Run("end of data", func(t *testing.T) {
		r, _ := reg.Open(0)
		_ = readAll(t, r, 64)
		n, err := r.ReadTo(&bytes.Buffer{}, 8)
		if n != 0 || !errors.Is(err, io.EOF) {
			t.Errorf("ReadTo() = %d, %v; want 0, EOF", n, err)
		}
	})

	t.Run("zero max", func(t *testing.T) {
		r, _ := reg.Open(0)
		n, err := r.ReadTo(&bytes.Buffer{}, 0)
		if n != 0 || err != nil {
			t.Errorf("ReadTo(0) = %d, %v; want 0, nil", n, err)
		}
	})
}

func TestWriteFrom(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	h, _ := reg.Open(0)
	_, _ = h.Write([]byte("original"))

	t.Run("fault leaves content", func(t *testing.T) {
		src := iotest.ErrReader(errors.New("bad address"))
		n, err := h.WriteFrom(src, 5)
		if !errors.Is(err, ErrTransferFault) || n != 0 {
			t.Errorf("WriteFrom() = %d, %v; want 0, ErrTransferFault", n, err)
		}
		if got := string(reg.instances[0].Bytes()); got != "original" {
			t.Errorf("content = %q after fault, want %q", got, "original")
		}
	})

	t.Run("short source is a fault", func(t *testing.T) {
		_, err := h.WriteFrom(strings.NewReader("abc"), 10)
		if !errors.Is(err, ErrTransferFault) {
			t.Errorf("WriteFrom() error = %v, want ErrTransferFault", err)
		}
		if got := string(reg.instances[0].Bytes()); got != "original" {
			t.Errorf("content = %q after fault, want %q", got, "original")
		}
	})

	t.Run("truncates count", func(t *testing.T) {
		src := bytes.NewReader(bytes.Repeat([]byte{'z'}, 400))
		n, err := h.WriteFrom(src, 400)
		if err != nil || n != DefaultCapacity-1 {
			t.Errorf("WriteFrom() = %d, %v; want %d, nil", n, err, DefaultCapacity-1)
		}
	})

	t.Run("stores bytes", func(t *testing.T) {
		n, err := h.WriteFrom(strings.NewReader("fresh data"), 5)
		if err != nil || n != 5 {
			t.Fatalf("WriteFrom() = %d, %v", n, err)
		}
		if got := string(reg.instances[0].Bytes()); got != "fresh" {
			t.Errorf("content = %q, want %q", got, "fresh")
		}
	})
}

func TestIoctl_AlwaysNeutral(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	h, _ := reg.Open(0)

	for _, cmd := range []uint{0, 1, 0xdeadbeef} {
		status, err := h.Ioctl(cmd, 42)
		if status != 0 || err != nil {
			t.Errorf("Ioctl(%#x) = %d, %v; want 0, nil", cmd, status, err)
		}
	}
}

func TestRelease(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	h, _ := reg.Open(0)
	_, _ = h.Write([]byte("kept"))

	if err := h.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !h.Released() {
		t.Error("Released() = false")
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{"read", func() error { _, err := h.Read(make([]byte, 1)); return err }},
		{"read to", func() error { _, err := h.ReadTo(&bytes.Buffer{}, 1); return err }},
		{"write", func() error { _, err := h.Write([]byte("x")); return err }},
		{"write from", func() error { _, err := h.WriteFrom(strings.NewReader("x"), 1); return err }},
		{"ioctl", func() error { _, err := h.Ioctl(0, 0); return err }},
		{"release", h.Release},
		{"close", h.Close},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, ErrHandleReleased) {
				t.Errorf("%s after release error = %v, want ErrHandleReleased", tt.name, err)
			}
		})
	}

	// Release has no effect on the instance.
	r, _ := reg.Open(0)
	if got := string(readAll(t, r, 8)); got != "kept" {
		t.Errorf("content after release = %q, want %q", got, "kept")
	}
}

func TestConcurrentWritersReaders(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)

	payloads := [][]byte{
		bytes.Repeat([]byte{'a'}, 200),
		bytes.Repeat([]byte{'b'}, 50),
		bytes.Repeat([]byte{'c'}, 255),
	}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.Open(0)
			if err != nil {
				t.Errorf("Open() error = %v", err)
				return
			}
			defer h.Release() //nolint:errcheck // Test cleanup
			for range 200 {
				if _, err := h.Write(p); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}()
	}

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				h, err := reg.Open(0)
				if err != nil {
					t.Errorf("Open() error = %v", err)
					return
				}
				// A single full-size read sees exactly one complete payload.
				buf := make([]byte, DefaultCapacity)
				n, err := h.Read(buf)
				_ = h.Release()
				if errors.Is(err, io.EOF) {
					continue
				}
				if err != nil {
					t.Errorf("Read() error = %v", err)
					return
				}
				if !consistent(buf[:n], payloads) {
					t.Errorf("torn read: %d bytes starting %q", n, buf[0])
					return
				}
			}
		}()
	}

	wg.Wait()
}

func consistent(got []byte, payloads [][]byte) bool {
	for _, p := range payloads {
		if bytes.Equal(got, p) {
			return true
		}
	}
	return false
}

func TestHandle_SharedAcrossGoroutines(t *testing.T) {
	reg, _ := newTestRegistry(t, 1)
	w, _ := reg.Open(0)
	data := bytes.Repeat([]byte{'q'}, 250)
	_, _ = w.Write(data)

	r, _ := reg.Open(0)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 3)
			for {
				n, err := r.Read(buf)
				mu.Lock()
				total += n
				mu.Unlock()
				if err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	if total != len(data) {
		t.Errorf("shared handle read %d bytes in total, want %d", total, len(data))
	}
}

package chardev

import "sync"

// terminator is stored at buf[length] after every write.
const terminator = 0

// Instance is one device: a fixed-capacity buffer and the count of valid
// bytes in it. buf and length are guarded together by mu.
type Instance struct {
	minor int
	name  string

	mu      sync.Mutex
	buf     []byte
	length  int
	retired bool
}

func newInstance(minor int, name string, capacity int) *Instance {
	return &Instance{
		minor: minor,
		name:  name,
		buf:   make([]byte, capacity),
	}
}

// Minor returns the instance's identifier.
func (d *Instance) Minor() int { return d.minor }

// Name returns the published node name.
func (d *Instance) Name() string { return d.name }

// Capacity returns C, the physical buffer size.
func (d *Instance) Capacity() int { return len(d.buf) }

// MaxPayload returns C-1, the most bytes a single write stores.
func (d *Instance) MaxPayload() int { return len(d.buf) - 1 }

// Len returns the number of valid bytes.
func (d *Instance) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.length
}

// Bytes returns a copy of the valid bytes.
func (d *Instance) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, d.length)
	copy(out, d.buf[:d.length])
	return out
}

// readAt copies valid bytes starting at off into dst and returns the count.
// A return of 0 with a nil error means off is at or past the valid length.
func (d *Instance) readAt(dst []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.retired {
		return 0, ErrUnavailable
	}
	if off >= int64(d.length) {
		return 0, nil
	}
	return copy(dst, d.buf[off:d.length]), nil
}

// store replaces the buffer contents with at most C-1 bytes of src.
// Bytes past the new length are left in place but are no longer valid.
func (d *Instance) store(src []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.retired {
		return 0, ErrUnavailable
	}
	n := min(len(src), d.MaxPayload())
	copy(d.buf, src[:n])
	d.buf[n] = terminator
	d.length = n
	return n, nil
}

// retire detaches the instance from the registry and invalidates its data.
// Handles still pointing at it get ErrUnavailable from then on.
func (d *Instance) retire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retired = true
	d.length = 0
	clear(d.buf)
}

func (d *Instance) info(available bool) DeviceInfo {
	return DeviceInfo{
		Minor:     d.minor,
		Name:      d.name,
		Available: available,
		Length:    d.Len(),
		Capacity:  d.Capacity(),
	}
}

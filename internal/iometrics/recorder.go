// Package iometrics counts device operations per minor and forwards each
// one to a time-series writer such as the InfluxDB client.
package iometrics

import (
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// PointWriter receives one point per counted operation.
// *influxdb.Client satisfies it. Implementations must not block.
type PointWriter interface {
	WriteIOMetric(class, device, op string, bytes int, at time.Time)
}

// DeviceStats are the running counters for one minor.
type DeviceStats struct {
	Minor        int       `json:"minor"`
	Name         string    `json:"name"`
	Opens        uint64    `json:"opens"`
	Releases     uint64    `json:"releases"`
	Reads        uint64    `json:"reads"`
	BytesRead    uint64    `json:"bytes_read"`
	Writes       uint64    `json:"writes"`
	BytesWritten uint64    `json:"bytes_written"`
	Ioctls       uint64    `json:"ioctls"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}

// Recorder is a chardev.Observer that keeps per-device counters.
// Class-level and node events are ignored.
type Recorder struct {
	mu      sync.Mutex
	devices map[int]*DeviceStats
	writer  PointWriter
}

// NewRecorder creates a Recorder. writer may be nil.
func NewRecorder(writer PointWriter) *Recorder {
	return &Recorder{
		devices: make(map[int]*DeviceStats),
		writer:  writer,
	}
}

// Observe implements chardev.Observer.
func (r *Recorder) Observe(ev chardev.Event) {
	if ev.Minor < 0 || !counted(ev.Kind) {
		return
	}
	bytes := uint64(max(ev.Bytes, 0)) // #nosec G115 -- clamped to non-negative

	r.mu.Lock()
	s, ok := r.devices[ev.Minor]
	if !ok {
		s = &DeviceStats{Minor: ev.Minor, Name: ev.Name}
		r.devices[ev.Minor] = s
	}
	switch ev.Kind {
	case chardev.EventOpened:
		s.Opens++
	case chardev.EventReleased:
		s.Releases++
	case chardev.EventRead:
		s.Reads++
		s.BytesRead += bytes
	case chardev.EventWritten:
		s.Writes++
		s.BytesWritten += bytes
	case chardev.EventIoctl:
		s.Ioctls++
	}
	s.LastActivity = ev.At
	r.mu.Unlock()

	if r.writer != nil {
		r.writer.WriteIOMetric(ev.Class, ev.Name, string(ev.Kind), ev.Bytes, ev.At)
	}
}

func counted(kind chardev.EventKind) bool {
	switch kind {
	case chardev.EventOpened, chardev.EventReleased,
		chardev.EventRead, chardev.EventWritten, chardev.EventIoctl:
		return true
	}
	return false
}

// Snapshot returns a copy of every device's counters ordered by minor.
func (r *Recorder) Snapshot() []DeviceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceStats, 0, len(r.devices))
	for _, s := range r.devices {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b DeviceStats) int { return a.Minor - b.Minor })
	return out
}

// Device returns the counters for one minor; ok is false if nothing has
// been recorded for it yet.
func (r *Recorder) Device(minor int) (stats DeviceStats, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.devices[minor]
	if !ok {
		return DeviceStats{}, false
	}
	return *s, true
}

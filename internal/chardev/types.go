package chardev

import (
	"context"
	"fmt"
	"io/fs"
	"time"
)

// Defaults matching the reference driver.
const (
	// DefaultDeviceCount is the number of minors created when none is configured.
	DefaultDeviceCount = 2

	// DefaultCapacity is the physical buffer size of each instance in bytes.
	// One byte is reserved for the terminator, so at most 255 bytes are stored.
	DefaultCapacity = 256

	// DefaultClassName is the device class and node name prefix.
	DefaultClassName = "mychardev"

	// DefaultMode is the access mode advertised for every node.
	DefaultMode fs.FileMode = 0o666

	// minCapacity leaves room for at least one payload byte plus the terminator.
	minCapacity = 2
)

// AttrDevMode is the node attribute carrying the octal access mode.
const AttrDevMode = "DEVMODE"

// Config controls the shape of a Registry.
type Config struct {
	// Count is the number of minors, N. Minors are 0..N-1.
	Count int

	// Capacity is the buffer size C of every instance.
	Capacity int

	// ClassName names the device class; nodes are published as "<class>-<minor>".
	ClassName string

	// Mode is advertised to the visibility layer as DEVMODE.
	Mode fs.FileMode
}

// DefaultConfig returns the reference configuration: two 256-byte devices
// named mychardev-0 and mychardev-1, world read/write.
func DefaultConfig() Config {
	return Config{
		Count:     DefaultDeviceCount,
		Capacity:  DefaultCapacity,
		ClassName: DefaultClassName,
		Mode:      DefaultMode,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Count < 1:
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidConfig, c.Count)
	case c.Capacity < minCapacity:
		return fmt.Errorf("%w: capacity must be at least %d, got %d", ErrInvalidConfig, minCapacity, c.Capacity)
	case c.ClassName == "":
		return fmt.Errorf("%w: class name is required", ErrInvalidConfig)
	}
	return nil
}

// NodeName returns the visible name for a minor, e.g. "mychardev-0".
func NodeName(class string, minor int) string {
	return fmt.Sprintf("%s-%d", class, minor)
}

// Node identifies one published device node.
type Node struct {
	Class string `json:"class" cbor:"class"`
	Name  string `json:"name" cbor:"name"`
	Minor int    `json:"minor" cbor:"minor"`
}

// AttrFunc is called by the visibility layer while it creates a node and
// returns the attributes to attach to it (DEVMODE and friends).
type AttrFunc func(node Node) map[string]string

// Publisher is the external registration/visibility layer. It makes device
// nodes addressable by name and later withdraws them.
//
// RegisterClass is called once before any node is published; UnregisterClass
// once after every node has been withdrawn.
type Publisher interface {
	RegisterClass(ctx context.Context, class string, count int) error
	PublishNode(ctx context.Context, node Node, attrs AttrFunc) error
	UnpublishNode(ctx context.Context, node Node) error
	UnregisterClass(ctx context.Context, class string) error
}

// noopPublisher accepts everything and publishes nothing.
type noopPublisher struct{}

func (noopPublisher) RegisterClass(context.Context, string, int) error  { return nil }
func (noopPublisher) PublishNode(context.Context, Node, AttrFunc) error { return nil }
func (noopPublisher) UnpublishNode(context.Context, Node) error         { return nil }
func (noopPublisher) UnregisterClass(context.Context, string) error     { return nil }

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceInfo is a point-in-time view of one minor.
type DeviceInfo struct {
	Minor     int    `json:"minor"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Length    int    `json:"length"`
	Capacity  int    `json:"capacity"`
}

// EventKind classifies an Event.
type EventKind string

// Event kinds emitted by the Registry and its handles.
const (
	EventClassRegistered   EventKind = "class_registered"
	EventClassUnregistered EventKind = "class_unregistered"
	EventNodePublished     EventKind = "node_published"
	EventNodeFailed        EventKind = "node_failed"
	EventNodeUnpublished   EventKind = "node_unpublished"
	EventOpened            EventKind = "opened"
	EventReleased          EventKind = "released"
	EventRead              EventKind = "read"
	EventWritten           EventKind = "written"
	EventIoctl             EventKind = "ioctl"
)

// Event describes something that happened to a device or handle.
// Minor is -1 for class-level events.
type Event struct {
	Kind     EventKind
	Class    string
	Minor    int
	Name     string
	HandleID string
	Bytes    int
	Err      error
	At       time.Time
}

// Observer receives events synchronously on the caller's goroutine.
//
// During Initialize and Teardown events are delivered with the registry lock
// held, so an observer must not call back into the Registry at all: Ready,
// Device, Devices, Open, Initialize and Teardown would deadlock. Observers
// must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans one event out to several observers in order.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) Observe(Event) {}

package chardev

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// lifecycle tracks where a Registry is between construction and teardown.
type lifecycle int

const (
	stateNew lifecycle = iota
	stateReady
	stateClosed
)

// Registry owns the fixed set of device instances and hands out handles.
//
// Instances are created by Initialize and released by Teardown; nothing
// else adds or removes them. A Registry cannot be reinitialised after
// Teardown.
type Registry struct {
	cfg Config

	mu        sync.RWMutex // Protects state and instances
	state     lifecycle
	instances []*Instance // Indexed by minor; nil means unavailable

	open atomic.Int64

	logger    Logger
	publisher Publisher
	observer  Observer
}

// NewRegistry creates a registry with the given configuration. No device
// exists until Initialize is called.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:       cfg,
		logger:    noopLogger{},
		publisher: noopPublisher{},
		observer:  noopObserver{},
	}, nil
}

// SetLogger sets the logger for the registry. Call before Initialize.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetPublisher sets the visibility layer. Call before Initialize.
func (r *Registry) SetPublisher(p Publisher) {
	if p == nil {
		p = noopPublisher{}
	}
	r.publisher = p
}

// SetObserver sets the event observer. Call before Initialize.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	r.observer = o
}

// Initialize registers the device class, then creates and publishes one
// instance per minor.
//
// A class registration failure aborts with ErrAllocationFailure and creates
// nothing. A failure for a single minor is logged, that minor stays
// permanently unavailable, and the remaining minors are still created; the
// per-minor failures are returned joined, each wrapping ErrAllocationFailure.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateNew {
		return ErrAlreadyInitialized
	}

	class := r.cfg.ClassName
	if err := r.publisher.RegisterClass(ctx, class, r.cfg.Count); err != nil {
		r.logger.Error("device class registration failed", "class", class, "error", err)
		return fmt.Errorf("%w: registering class %q: %w", ErrAllocationFailure, class, err)
	}
	r.emit(Event{Kind: EventClassRegistered, Minor: -1, Bytes: r.cfg.Count})

	r.instances = make([]*Instance, r.cfg.Count)
	var errs []error
	for minor := range r.cfg.Count {
		dev := newInstance(minor, NodeName(class, minor), r.cfg.Capacity)
		node := Node{Class: class, Name: dev.Name(), Minor: minor}

		if err := r.publisher.PublishNode(ctx, node, r.nodeAttrs); err != nil {
			r.logger.Error("device node creation failed", "name", node.Name, "minor", minor, "error", err)
			r.emit(Event{Kind: EventNodeFailed, Minor: minor, Name: node.Name, Err: err})
			errs = append(errs, fmt.Errorf("%w: minor %d: %w", ErrAllocationFailure, minor, err))
			continue
		}

		r.instances[minor] = dev
		r.logger.Debug("device node created", "name", node.Name, "minor", minor)
		r.emit(Event{Kind: EventNodePublished, Minor: minor, Name: node.Name})
	}

	r.state = stateReady
	r.logger.Info("device registry initialised",
		"class", class,
		"devices", r.cfg.Count,
		"available", r.cfg.Count-len(errs),
		"capacity", r.cfg.Capacity,
	)
	return errors.Join(errs...)
}

// nodeAttrs is handed to the publisher and called while each node is created.
func (r *Registry) nodeAttrs(Node) map[string]string {
	return map[string]string{
		AttrDevMode: fmt.Sprintf("%#o", uint32(r.cfg.Mode.Perm())),
	}
}

// Teardown withdraws every still-published node, invalidates the instances
// and unregisters the class. Calling it again, or before Initialize, does
// nothing. Unpublish failures are logged and returned joined; they never
// stop the teardown.
func (r *Registry) Teardown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateReady {
		return nil
	}

	class := r.cfg.ClassName
	var errs []error
	for minor, dev := range r.instances {
		if dev == nil {
			continue
		}
		node := Node{Class: class, Name: dev.Name(), Minor: minor}
		// The instance is retired either way; Err tells observers the
		// withdrawal never reached the visibility layer.
		unpubErr := r.publisher.UnpublishNode(ctx, node)
		if unpubErr != nil {
			r.logger.Warn("device node removal failed", "name", node.Name, "error", unpubErr)
			errs = append(errs, fmt.Errorf("unpublishing %s: %w", node.Name, unpubErr))
		}
		dev.retire()
		r.instances[minor] = nil
		r.emit(Event{Kind: EventNodeUnpublished, Minor: minor, Name: node.Name, Err: unpubErr})
	}

	unregErr := r.publisher.UnregisterClass(ctx, class)
	if unregErr != nil {
		r.logger.Warn("device class removal failed", "class", class, "error", unregErr)
		errs = append(errs, fmt.Errorf("unregistering class %q: %w", class, unregErr))
	}
	r.emit(Event{Kind: EventClassUnregistered, Minor: -1, Err: unregErr})

	r.state = stateClosed
	r.logger.Info("device registry torn down", "class", class, "open_handles", r.open.Load())
	return errors.Join(errs...)
}

// Open returns a new handle on minor with its offset at 0. There is no
// limit on concurrent handles and no exclusivity.
func (r *Registry) Open(minor int) (*Handle, error) {
	r.mu.RLock()
	state := r.state
	var dev *Instance
	if state == stateReady && minor >= 0 && minor < len(r.instances) {
		dev = r.instances[minor]
	}
	r.mu.RUnlock()

	if state != stateReady {
		return nil, ErrNotInitialized
	}
	if minor < 0 || minor >= r.cfg.Count {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, minor, r.cfg.Count)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: minor %d: %w", ErrUnavailable, minor, ErrAllocationFailure)
	}

	h := newHandle(r, dev)
	r.open.Add(1)
	r.logger.Debug("device opened", "name", dev.Name(), "handle", h.ID())
	r.emit(Event{Kind: EventOpened, Minor: minor, Name: dev.Name(), HandleID: h.ID()})
	return h, nil
}

func (r *Registry) handleReleased(h *Handle) {
	r.open.Add(-1)
	r.logger.Debug("device released", "name", h.Name(), "handle", h.ID())
}

// Count returns N, the number of minors.
func (r *Registry) Count() int { return r.cfg.Count }

// Capacity returns C, the buffer size of every instance.
func (r *Registry) Capacity() int { return r.cfg.Capacity }

// ClassName returns the device class name.
func (r *Registry) ClassName() string { return r.cfg.ClassName }

// OpenHandles returns the number of handles not yet released.
func (r *Registry) OpenHandles() int { return int(r.open.Load()) }

// Ready reports whether Initialize has completed and Teardown has not run.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == stateReady
}

// Device returns a snapshot of one minor.
func (r *Registry) Device(minor int) (DeviceInfo, error) {
	if minor < 0 || minor >= r.cfg.Count {
		return DeviceInfo{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, minor, r.cfg.Count)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != stateReady {
		return DeviceInfo{}, ErrNotInitialized
	}
	return r.deviceInfo(minor), nil
}

// Devices returns a snapshot of every minor, ordered by minor.
// It returns nil when the registry is not initialised.
func (r *Registry) Devices() []DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != stateReady {
		return nil
	}

	out := make([]DeviceInfo, 0, r.cfg.Count)
	for minor := range r.cfg.Count {
		out = append(out, r.deviceInfo(minor))
	}
	return out
}

// deviceInfo must be called with r.mu held.
func (r *Registry) deviceInfo(minor int) DeviceInfo {
	if dev := r.instances[minor]; dev != nil {
		return dev.info(true)
	}
	return DeviceInfo{
		Minor:    minor,
		Name:     NodeName(r.cfg.ClassName, minor),
		Capacity: r.cfg.Capacity,
	}
}

func (r *Registry) emit(ev Event) {
	ev.Class = r.cfg.ClassName
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	r.observer.Observe(ev)
}

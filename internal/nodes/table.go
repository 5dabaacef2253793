package nodes

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// Entry is a published node together with the attributes collected while
// it was created.
type Entry struct {
	Node        chardev.Node      `json:"node" cbor:"node"`
	Attrs       map[string]string `json:"attrs,omitempty" cbor:"attrs,omitempty"`
	PublishedAt time.Time         `json:"published_at" cbor:"published_at"`
}

// Mode returns the DEVMODE attribute, or "" when none was supplied.
func (e Entry) Mode() string {
	return e.Attrs[chardev.AttrDevMode]
}

// ClassRecord describes a registered device class.
type ClassRecord struct {
	Class        string    `json:"class" cbor:"class"`
	Count        int       `json:"count" cbor:"count"`
	RegisteredAt time.Time `json:"registered_at" cbor:"registered_at"`
}

// Table is an in-memory chardev.Publisher. Nodes are addressable by name
// until they are unpublished.
//
// Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	classes map[string]ClassRecord
	nodes   map[string]Entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		classes: make(map[string]ClassRecord),
		nodes:   make(map[string]Entry),
	}
}

// RegisterClass implements chardev.Publisher.
func (t *Table) RegisterClass(_ context.Context, class string, count int) error {
	_, err := t.registerClass(class, count)
	return err
}

func (t *Table) registerClass(class string, count int) (ClassRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.classes[class]; ok {
		return ClassRecord{}, fmt.Errorf("%w: %s", ErrClassExists, class)
	}
	rec := ClassRecord{Class: class, Count: count, RegisteredAt: time.Now().UTC()}
	t.classes[class] = rec
	return rec, nil
}

// PublishNode implements chardev.Publisher. attrs is called once, before
// the node becomes visible.
func (t *Table) PublishNode(_ context.Context, node chardev.Node, attrs chardev.AttrFunc) error {
	_, err := t.publishNode(node, attrs)
	return err
}

func (t *Table) publishNode(node chardev.Node, attrs chardev.AttrFunc) (Entry, error) {
	entry := Entry{Node: node, PublishedAt: time.Now().UTC()}
	if attrs != nil {
		entry.Attrs = maps.Clone(attrs(node))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.classes[node.Class]; !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrClassNotRegistered, node.Class)
	}
	if _, ok := t.nodes[node.Name]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNodeExists, node.Name)
	}
	t.nodes[node.Name] = entry
	return entry, nil
}

// UnpublishNode implements chardev.Publisher.
func (t *Table) UnpublishNode(_ context.Context, node chardev.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[node.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, node.Name)
	}
	delete(t.nodes, node.Name)
	return nil
}

// UnregisterClass implements chardev.Publisher. Any nodes of the class that
// are still published are dropped with it.
func (t *Table) UnregisterClass(_ context.Context, class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.classes[class]; !ok {
		return fmt.Errorf("%w: %s", ErrClassNotRegistered, class)
	}
	delete(t.classes, class)
	maps.DeleteFunc(t.nodes, func(_ string, e Entry) bool {
		return e.Node.Class == class
	})
	return nil
}

// Lookup resolves a node by name.
func (t *Table) Lookup(name string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.nodes[name]
	return e, ok
}

// Class returns the record for a registered class.
func (t *Table) Class(class string) (ClassRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.classes[class]
	return rec, ok
}

// List returns the published nodes of class ordered by minor. An empty
// class lists every node.
func (t *Table) List(class string) []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.nodes))
	for _, e := range t.nodes {
		if class == "" || e.Node.Class == class {
			out = append(out, e)
		}
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.Node.Class, b.Node.Class); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.Minor, b.Node.Minor)
	})
	return out
}

// Len returns the number of published nodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// forget removes a class or node without error checks. It undoes a
// registration whose announcement could not be delivered.
func (t *Table) forget(class, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name != "" {
		delete(t.nodes, name)
		return
	}
	delete(t.classes, class)
}

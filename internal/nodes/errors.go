package nodes

import "errors"

// Errors returned by the node table and publishers.
var (
	// ErrClassExists is returned when a class is registered twice.
	ErrClassExists = errors.New("nodes: class already registered")

	// ErrClassNotRegistered is returned when a node refers to an unknown class.
	ErrClassNotRegistered = errors.New("nodes: class not registered")

	// ErrNodeExists is returned when a node name is already published.
	ErrNodeExists = errors.New("nodes: node already published")

	// ErrNodeNotFound is returned when a node is not published.
	ErrNodeNotFound = errors.New("nodes: node not found")

	// ErrUnknownEncoding is returned by ParseEncoding for unsupported names.
	ErrUnknownEncoding = errors.New("nodes: unknown encoding")
)

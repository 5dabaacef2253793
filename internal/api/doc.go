// Package api implements the HTTP REST surface of chardevd.
//
// It exposes the device IO protocol over HTTP so that tools without access
// to the process can open, read, write, ioctl and release device handles:
//
//	GET    /api/v1/devices                 list every minor
//	POST   /api/v1/devices/{minor}/open    open a handle
//	GET    /api/v1/handles/{id}/read?max=N read from the handle's offset
//	PUT    /api/v1/handles/{id}/write      replace the device contents
//	POST   /api/v1/handles/{id}/ioctl      no-op control call
//	DELETE /api/v1/handles/{id}            release
//
// Handles opened over HTTP live in a server-side table keyed by handle ID
// until they are released or the server closes. Reads at end-of-data
// answer 204 No Content; the current offset is returned in X-Offset.
//
// # Error Mapping
//
//	chardev.ErrOutOfRange      404
//	chardev.ErrHandleReleased  404 (as are unknown handle IDs)
//	chardev.ErrUnavailable     503
//	chardev.ErrNotInitialized  503
//	chardev.ErrTransferFault   400
//
// Audit and IO metric endpoints are available when those components are
// configured.
package api

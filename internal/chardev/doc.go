// Package chardev provides the device core for chardev-core.
//
// A Registry owns a fixed set of device instances addressed by minor number.
// Each Instance holds one bounded byte buffer. Callers open an instance by
// minor and receive a Handle, which carries its own read cursor and exposes
// the open/read/write/ioctl/release protocol with POSIX sequential-file
// semantics:
//
//   - Write always replaces the buffer from index 0 and truncates silently at
//     Capacity-1 bytes. It never touches any handle's offset.
//   - Read copies from the handle's offset up to the valid length and advances
//     the offset. At end of data it returns 0 and io.EOF, repeatably.
//   - Ioctl defines no commands and always succeeds.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Registry                             │
//	│                                                               │
//	│   minor 0 ──▶ Instance{buf, length, mu}                       │
//	│   minor 1 ──▶ Instance{buf, length, mu}                       │
//	│   minor n ──▶ nil (publication failed, permanently unavailable)│
//	└───────────────┬──────────────────────────────┬───────────────┘
//	                │ Open(minor)                  │ Initialize / Teardown
//	                ▼                              ▼
//	        Handle{offset, id}              Publisher (node visibility)
//	                │
//	                ▼
//	        Observer (audit, metrics)
//
// # Usage
//
//	reg, err := chardev.NewRegistry(chardev.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	reg.SetLogger(log)
//	reg.SetPublisher(nodes.NewTable())
//
//	if err := reg.Initialize(ctx); err != nil {
//	    log.Warn("some device nodes are unavailable", "error", err)
//	}
//	defer reg.Teardown(ctx)
//
//	h, err := reg.Open(0)
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	h.Write([]byte("hello"))
//	data, _ := io.ReadAll(h)
//
// # Thread Safety
//
// Every Instance serialises reads and writes with its own mutex, so a reader
// never observes a half-applied write. A Handle may be shared between
// goroutines; its offset is protected by a separate mutex. Registry lookups
// are safe for concurrent use once Initialize has returned.
package chardev

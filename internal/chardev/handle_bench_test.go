package chardev

import (
	"context"
	"io"
	"testing"
)

// setupBenchRegistry creates an initialised registry with one device of the
// given capacity.
func setupBenchRegistry(b *testing.B, capacity int) *Registry {
	b.Helper()
	reg, err := NewRegistry(Config{Count: 1, Capacity: capacity, ClassName: "bench", Mode: 0o666})
	if err != nil {
		b.Fatalf("creating registry: %v", err)
	}
	if err := reg.Initialize(context.Background()); err != nil {
		b.Fatalf("initialising registry: %v", err)
	}
	b.Cleanup(func() { reg.Teardown(context.Background()) }) //nolint:errcheck // benchmark
	return reg
}

func BenchmarkHandleWrite(b *testing.B) {
	reg := setupBenchRegistry(b, 4096)
	h, err := reg.Open(0)
	if err != nil {
		b.Fatalf("opening device: %v", err)
	}
	defer h.Release() //nolint:errcheck // benchmark

	payload := make([]byte, 1024)
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Write(payload) //nolint:errcheck // benchmark
	}
}

func BenchmarkHandleReadAll(b *testing.B) {
	reg := setupBenchRegistry(b, 4096)
	w, err := reg.Open(0)
	if err != nil {
		b.Fatalf("opening device: %v", err)
	}
	if _, err := w.Write(make([]byte, 2048)); err != nil {
		b.Fatalf("seeding device: %v", err)
	}
	w.Release() //nolint:errcheck // benchmark

	buf := make([]byte, 256)
	b.SetBytes(2048)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _ := reg.Open(0) //nolint:errcheck // benchmark
		for {
			if _, err := h.Read(buf); err == io.EOF {
				break
			}
		}
		h.Release() //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryOpenRelease(b *testing.B) {
	reg := setupBenchRegistry(b, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _ := reg.Open(0) //nolint:errcheck // benchmark
		h.Release()         //nolint:errcheck // benchmark
	}
}

package loadtest

import "runtime"

// runtimeReader reports only the Go heap of the harness process. It is the
// fallback where /proc is not available.
type runtimeReader struct{}

func (runtimeReader) Read() (ResourceUsage, error) {
	return ResourceUsage{MemoryBytes: runtimeHeapBytes()}, nil
}

func runtimeHeapBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

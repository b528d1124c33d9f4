//go:build !linux

package loadtest

// NewSystemResourceReader returns the platform reader. Outside Linux only Go
// runtime statistics are available.
func NewSystemResourceReader() ResourceReader {
	return runtimeReader{}
}

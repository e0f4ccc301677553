//go:build darwin

// Package cpu pins pool workers to CPU cores where the platform allows it.
package cpu

import "runtime"

// Pin locks the calling goroutine to an OS thread. macOS offers no public
// thread-affinity API, so locking is all we can do here.
func Pin(workerID int) func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

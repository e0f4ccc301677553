//go:build linux

// Package cpu pins pool workers to CPU cores where the platform allows it.
package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to an OS thread and binds that thread to a
// single core, chosen from workerID modulo the logical CPU count. The
// returned release function unlocks the thread and must be deferred by the
// worker.
func Pin(workerID int) func() {
	runtime.LockOSThread()

	core := workerID % runtime.NumCPU()
	if core < 0 {
		core = 0
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(core)
	// 0 means the current thread. Failure is non-fatal: the worker simply
	// runs unpinned.
	_ = unix.SchedSetaffinity(0, &mask)

	return runtime.UnlockOSThread
}

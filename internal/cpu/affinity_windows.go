//go:build windows

// Package cpu pins pool workers to CPU cores where the platform allows it.
package cpu

import (
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinity = kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread  = kernel32.NewProc("GetCurrentThread")
)

// Pin locks the calling goroutine to an OS thread and binds that thread to a
// single core via SetThreadAffinityMask. Failure is non-fatal: the worker
// simply runs unpinned.
func Pin(workerID int) func() {
	runtime.LockOSThread()

	core := workerID % runtime.NumCPU()
	if core < 0 {
		core = 0
	}

	handle, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << core
	_, _, _ = procSetThreadAffinity.Call(handle, mask)

	return runtime.UnlockOSThread
}

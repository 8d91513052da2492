// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning for the drain goroutine. Platform implementations live in
// affinity_linux.go and affinity_other.go.

package affinity

import (
	"fmt"
	"runtime"
)

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to cpu. The returned func undoes the lock; the thread mask stays
// with the thread.
func Pin(cpu int) (func(), error) {
	if cpu < 0 || cpu >= runtime.NumCPU() {
		return func() {}, fmt.Errorf("affinity: cpu %d out of range [0,%d)", cpu, runtime.NumCPU())
	}
	runtime.LockOSThread()
	if err := setAffinity(cpu); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return runtime.UnlockOSThread, nil
}

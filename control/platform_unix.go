//go:build unix

// control/platform_unix.go
// Author: momentics <momentics@gmail.com>
//
// Unix platform probes.

package control

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes adds CPU, goroutine and page size probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any { return runtime.NumCPU() })
	dp.RegisterProbe("platform.goroutines", func() any { return runtime.NumGoroutine() })
	dp.RegisterProbe("platform.pagesize", func() any { return unix.Getpagesize() })
}

//go:build unix

// File: pool/region_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"golang.org/x/sys/unix"
)

// allocRegion maps an anonymous private region. Falls back to the Go heap
// when the mapping fails.
func allocRegion(size int) ([]byte, bool, error) {
	assert(size > 0, "region size must be positive")
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Debugf("mmap %d bytes failed, using heap: %s", size, err)
		return make([]byte, size), false, nil
	}
	return region, true, nil
}

func freeRegion(region []byte, native bool) error {
	if !native {
		return nil
	}
	return unix.Munmap(region)
}

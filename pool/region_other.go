//go:build !unix

// File: pool/region_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

func allocRegion(size int) ([]byte, bool, error) {
	assert(size > 0, "region size must be positive")
	return make([]byte, size), false, nil
}

func freeRegion([]byte, bool) error { return nil }

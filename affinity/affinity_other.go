//go:build !linux

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"fmt"

	"github.com/momentics/isorec/api"
)

func setAffinity(cpu int) error {
	return fmt.Errorf("affinity: pinning to cpu %d: %w", cpu, api.ErrNotSupported)
}

package affinity_test

import (
	"runtime"
	"testing"

	"github.com/momentics/isorec/affinity"
)

func TestPinRejectsOutOfRange(t *testing.T) {
	for _, cpu := range []int{-1, runtime.NumCPU()} {
		if _, err := affinity.Pin(cpu); err == nil {
			t.Errorf("cpu %d accepted", cpu)
		}
	}
}

func TestPinCurrentCPU(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pinning is linux only")
	}
	unpin, err := affinity.Pin(0)
	if err != nil {
		t.Skipf("sched_setaffinity unavailable: %v", err)
	}
	unpin()
}

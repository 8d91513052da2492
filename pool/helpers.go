// File: pool/helpers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

// GetLive takes a buffer from the free pool into live, or allocates one.
func GetLive(size int, s *MemorySpace, t ThreadID) *Buffer {
	if b := s.AcquireFree(size, t, false); b != nil {
		return b
	}
	return s.Allocate(size, t, false)
}

// AcquireLiveWithRetry scans the live pool up to retries times.
func AcquireLiveWithRetry(size int, s *MemorySpace, retries int, t ThreadID) *Buffer {
	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		if b := s.AcquireLive(size, t, false); b != nil {
			return b
		}
		log.Debugf("%s: no live buffer for %d bytes, attempt %d/%d", s.Name(), size, i+1, retries)
	}
	return nil
}

// AcquireTransientLeaseToLive allocates a one-off buffer of size bytes
// into the live pool, flagged transient and leased, acquired by t.
// Transient buffers are deallocated instead of being recycled.
func AcquireTransientLeaseToLive(size int, s *MemorySpace, t ThreadID, previousEpoch bool) *Buffer {
	b, err := s.newBuffer(size)
	if err != nil {
		log.Warningf("%s", err)
		return nil
	}
	if b == nil {
		return nil
	}
	b.SetTransient()
	b.SetLeased()
	b.Acquire(t)
	s.addLive(b, previousEpoch)
	return b
}

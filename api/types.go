// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// StorageStats provides a standard layout for storage engine health reporting.
type StorageStats struct {
	FullBuffers   int
	DeadBuffers   int64
	PromotedBytes uint64
	WrittenBytes  uint64
	LostBytes     uint64
	LostBuffers   uint64
	DroppedWrites uint64
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Recording string
	StartedAt time.Time
}

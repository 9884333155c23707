// Package diag reports host memory pressure alongside a RegionSet's own
// byte accounting, purely for observability: it never gates an allocation
// decision or drives eviction.
package diag

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of allocator and host memory pressure.
type Snapshot struct {
	RegionCount  int
	BytesMapped  uint64
	HostTotal    uint64
	HostAvail    uint64
	HostUsedPct  float64
}

// String renders a one-line operator-facing summary.
func (s Snapshot) String() string {
	return fmt.Sprintf("allocator holds %d bytes across %d regions; host has %.1f%% memory available",
		s.BytesMapped, s.RegionCount, 100-s.HostUsedPct)
}

// Take captures a Snapshot: regionCount/bytesMapped describe the
// allocator's own accounting, and the host figures come from
// mem.VirtualMemory().
func Take(regionCount int, bytesMapped uint64) (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("diag.Take: %w", err)
	}
	return Snapshot{
		RegionCount: regionCount,
		BytesMapped: bytesMapped,
		HostTotal:   vm.Total,
		HostAvail:   vm.Available,
		HostUsedPct: vm.UsedPercent,
	}, nil
}

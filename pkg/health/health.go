// Package health exposes liveness/readiness handlers for the shared-memory
// allocator subsystem, using github.com/heptiolabs/healthcheck the way an
// operator-facing HTTP endpoint would wire it in.
package health

import (
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
)

// RegionCounter is anything that can report how many regions it currently
// tracks; regionset.Ordered and regionset.Hashed both satisfy it.
type RegionCounter interface {
	Len() int
}

// Checks bundles a Handler wired with the standard ipcator health checks.
// Checks.Handler satisfies http.Handler and can be mounted directly; its
// endpoints are handler funcs, e.g.
// mux.HandleFunc("/live", checks.LiveEndpoint) / mux.HandleFunc("/ready", checks.ReadyEndpoint).
type Checks struct {
	healthcheck.Handler
}

// New builds a Checks handler:
//   - liveness: /dev/shm is statable and a directory.
//   - readiness: counter's region count stays under maxRegions.
func New(counter RegionCounter, maxRegions int) *Checks {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("dev-shm-reachable", shmReachable)
	h.AddReadinessCheck("region-count-ceiling", regionCeiling(counter, maxRegions))

	return &Checks{Handler: h}
}

func shmReachable() error {
	fi, err := os.Stat("/dev/shm")
	if err != nil {
		return fmt.Errorf("health: /dev/shm unreachable: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("health: /dev/shm is not a directory")
	}
	return nil
}

func regionCeiling(counter RegionCounter, max int) healthcheck.Check {
	return func() error {
		if n := counter.Len(); n >= max {
			return fmt.Errorf("health: region count %d at or above ceiling %d", n, max)
		}
		return nil
	}
}

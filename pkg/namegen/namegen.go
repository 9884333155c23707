// Package namegen produces globally-unique POSIX shared-memory region names:
// a fixed prefix, a monotonically increasing per-process counter, and a
// random suffix drawn from [0-9A-Za-z], sized so the name occupies the
// largest length that still leaves the materialized "/dev/shm" + name path
// within POSIX's 255-byte limit.
package namegen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// TargetLength is the exact length names are generated at: 255 minus
// len("/dev/shm"), the largest name (including its leading '/') that keeps
// the materialized path within POSIX's 255-byte limit.
const TargetLength = 247

const prefix = "/github_dot_com_slash_shynur_slash_ipcator--"

const availableChars = "0123456789" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz"

var counter atomic.Uint64

// rng is seeded once per process from a system entropy source, mirroring
// the original's std::mt19937 seeded from std::random_device. math/rand/v2
// generators are not safe for concurrent use, so access is serialized with
// rngMu. The counter above only makes names unique within this process
// (every process starts it from zero); the random suffix is what keeps
// names from different processes apart.
var (
	rngMu sync.Mutex
	rng   = newProcessRNG()
)

func newProcessRNG() *rand.Rand {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// host; fall back to a fixed seed rather than panic so that a
		// starved entropy pool degrades uniqueness instead of crashing
		// the allocator.
		binary.BigEndian.PutUint64(seed[:8], 0x5eed5eed5eed5eed)
	}
	return rand.New(rand.NewChaCha8(seed))
}

// New returns a fresh, globally-unique (with overwhelming probability)
// region name of exactly TargetLength characters, beginning with '/'.
func New() string {
	seq := counter.Add(1)
	name := fmt.Sprintf("%s%06d--", prefix, seq)

	if len(name) >= TargetLength {
		// The fixed prefix + counter alone exceeds the target length; this
		// cannot happen with the constants above but guards against a
		// future prefix change silently violating the length contract.
		return name[:TargetLength]
	}

	buf := make([]byte, TargetLength-len(name))
	rngMu.Lock()
	for i := range buf {
		buf[i] = availableChars[rng.IntN(len(availableChars))]
	}
	rngMu.Unlock()
	return name + string(buf)
}

package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// nodeRand derives a node's random stream from the run seed. Hashing the
// node id in keeps streams independent: reordering or adding nodes never
// shifts another node's draws.
func nodeRand(seed uint64, nodeID string) *rand.Rand {
	h := sha256.New()
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	h.Write(b[:])
	h.Write([]byte(nodeID))
	sum := h.Sum(nil)
	s := binary.BigEndian.Uint64(sum[:8])
	return rand.New(rand.NewSource(int64(s))) //nolint:gosec
}

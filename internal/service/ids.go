package service

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource hands out monotonic ULIDs so receipts sort by time even within one millisecond.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &idSource{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

func (s *idSource) next(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at.UTC()), s.entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		id = ulid.MustNew(ulid.Timestamp(at.UTC()), cryptoRand.Reader)
	}
	return id.String()
}

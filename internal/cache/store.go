package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Store is a key/value backend with per-entry expiry.
//
// Get reports found=false for absent and expired keys. A ttl of zero or
// less means the entry does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that need periodic removal of expired
// entries or reclamation of space.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Key derives a stable cache key from its parts. Each part is length
// prefixed before hashing, so ("ab", "c") and ("a", "bc") differ.
// The namespace is kept readable in front of the digest.
func Key(namespace string, parts ...string) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

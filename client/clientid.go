package client

import (
	"crypto/rand"
	"encoding/binary"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// ClientIDFromUint32 packs n as the 4 big-endian bytes a node expects.
func ClientIDFromUint32(n uint32) []byte {
	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, n)
	return id
}

// NewClientID returns a 4 byte id unlikely to collide with another client's:
// a hash of the host, the process, the time and some random bytes.
func NewClientID() []byte {
	h := blake3.New()

	host, _ := os.Hostname()
	_, _ = h.Write([]byte(host))

	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(os.Getpid()))
	_, _ = h.Write(scratch[:])

	binary.BigEndian.PutUint64(scratch[:], uint64(time.Now().UnixNano()))
	_, _ = h.Write(scratch[:])

	var noise [16]byte
	_, _ = rand.Read(noise[:])
	_, _ = h.Write(noise[:])

	return h.Sum(nil)[:4]
}

// Package storage holds the objects of an in-process node, keyed by bucket
// and key.
package storage

import (
	"context"
	"errors"

	"github.com/luma/riakpb/protocol"
)

var (
	ErrNotFound = errors.New("Key not found in bucket")
)

// Record is the stored state of one key. Siblings has more than one entry
// only when the bucket allows multiple values and writes conflicted.
type Record struct {
	VClock   []byte
	Siblings []protocol.Content
}

type Props struct {
	NVal      uint32
	AllowMult bool
}

// DefaultProps are the properties of a bucket nobody has configured.
var DefaultProps = Props{NVal: 3}

type Store interface {
	Get(ctx context.Context, bucket, key string) (*Record, error)

	// Put stores content under bucket/key. vclock is the version the writer
	// last saw; a stale vclock on a bucket allowing multiple values adds a
	// sibling instead of replacing the value.
	Put(ctx context.Context, bucket, key string, vclock []byte, content protocol.Content) (*Record, error)
	Delete(ctx context.Context, bucket, key string) error

	Buckets(ctx context.Context) ([]string, error)
	Keys(ctx context.Context, bucket string) ([]string, error)

	Props(ctx context.Context, bucket string) (Props, error)
	SetProps(ctx context.Context, bucket string, props Props) error

	// IndexQuery returns the keys in bucket whose index entries fall within
	// [min, max].
	IndexQuery(ctx context.Context, bucket, index, min, max string) ([]string, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}

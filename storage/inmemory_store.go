package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/riakpb/protocol"
)

var (
	ErrInvalidBackup = errors.New("Backup is not a JSON object of buckets")
)

type InmemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]*Record
	props   map[string]Props
	clock   uint64

	// stop willl be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		buckets: make(map[string]map[string]*Record),
		props:   make(map[string]Props),
		stop:    make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, bucket, key string) (*Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("Failed to get %s/%s: %w", bucket, key, ErrNotFound)
	}

	return copyRecord(rec), nil
}

func (i *InmemoryStore) Put(ctx context.Context, bucket, key string, vclock []byte, content protocol.Content) (*Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return copyRecord(i.put(bucket, key, vclock, content)), nil
}

func (i *InmemoryStore) put(bucket, key string, vclock []byte, content protocol.Content) *Record {
	keys, ok := i.buckets[bucket]
	if !ok {
		keys = make(map[string]*Record)
		i.buckets[bucket] = keys
	}

	siblings := []protocol.Content{content}

	if existing, ok := keys[key]; ok && i.propsFor(bucket).AllowMult && !bytes.Equal(existing.VClock, vclock) {
		siblings = append(existing.Siblings, content)
	}

	rec := &Record{VClock: i.tick(), Siblings: siblings}
	keys[key] = rec

	return rec
}

// tick returns a fresh vclock. Every write gets a distinct one.
func (i *InmemoryStore) tick() []byte {
	i.clock++

	vclock := make([]byte, 8)
	binary.BigEndian.PutUint64(vclock, i.clock)
	return vclock
}

func (i *InmemoryStore) Delete(ctx context.Context, bucket, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.buckets[bucket], key)

	if len(i.buckets[bucket]) == 0 {
		delete(i.buckets, bucket)
	}

	return nil
}

func (i *InmemoryStore) Buckets(ctx context.Context) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return sortedKeys(i.buckets), nil
}

func (i *InmemoryStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return sortedKeys(i.buckets[bucket]), nil
}

func (i *InmemoryStore) Props(ctx context.Context, bucket string) (Props, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.propsFor(bucket), nil
}

func (i *InmemoryStore) propsFor(bucket string) Props {
	if props, ok := i.props[bucket]; ok {
		return props
	}

	return DefaultProps
}

func (i *InmemoryStore) SetProps(ctx context.Context, bucket string, props Props) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.props[bucket] = props

	return nil
}

func (i *InmemoryStore) IndexQuery(ctx context.Context, bucket, index, min, max string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var keys []string

	for _, key := range sortedKeys(i.buckets[bucket]) {
		if matchesIndex(i.buckets[bucket][key], index, min, max) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func matchesIndex(rec *Record, index, min, max string) bool {
	for _, content := range rec.Siblings {
		for _, entry := range content.Indexes {
			if entry.Key != index {
				continue
			}

			value := string(entry.Value)
			if value >= min && value <= max {
				return true
			}
		}
	}

	return false
}

// Restore replaces the contents of the store with a backup of the form
// {"bucket": {"key": <json value>}}. Every value is stored as JSON.
func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidBackup
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.buckets = make(map[string]map[string]*Record)

	gjson.ParseBytes(values).ForEach(func(bucket, keys gjson.Result) bool {
		keys.ForEach(func(key, value gjson.Result) bool {
			i.put(bucket.String(), key.String(), nil, protocol.Content{
				Value:       []byte(value.Raw),
				ContentType: "application/json",
			})
			return true
		})
		return true
	})

	return nil
}

// Backup writes the first sibling of every key in the form Restore reads.
// Values that are not JSON are written as strings.
func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var (
		out = []byte("{}")
		err error
	)

	for _, bucket := range sortedKeys(i.buckets) {
		for _, key := range sortedKeys(i.buckets[bucket]) {
			rec := i.buckets[bucket][key]
			if len(rec.Siblings) == 0 {
				continue
			}

			path := escapePath(bucket) + "." + escapePath(key)
			value := rec.Siblings[0].Value

			if gjson.ValidBytes(value) {
				out, err = sjson.SetRawBytes(out, path, value)
			} else {
				out, err = sjson.SetBytes(out, path, string(value))
			}

			if err != nil {
				return nil, fmt.Errorf("Failed to back up %s/%s: %w", bucket, key, err)
			}
		}
	}

	return out, nil
}

// escapePath makes name safe to use as one component of an sjson path.
func escapePath(name string) string {
	var b strings.Builder

	if isNumeric(name) {
		b.WriteByte(':')
	}

	for _, r := range name {
		switch r {
		case '\\', '.', ':', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}

func isNumeric(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func sortedKeys(m interface{}) []string {
	var keys []string

	switch t := m.(type) {
	case map[string]map[string]*Record:
		for k := range t {
			keys = append(keys, k)
		}
	case map[string]*Record:
		for k := range t {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys
}

func copyRecord(rec *Record) *Record {
	siblings := make([]protocol.Content, len(rec.Siblings))
	copy(siblings, rec.Siblings)

	return &Record{
		VClock:   append([]byte(nil), rec.VClock...),
		Siblings: siblings,
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)

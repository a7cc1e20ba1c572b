package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
	"github.com/luma/riakpb/quorum"
)

const gzipEncoding = "gzip"

type Link struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
	Tag    string `json:"tag" yaml:"tag"`
}

// Content is one value of an object. Value is always uncompressed: content
// with a gzip ContentEncoding is decompressed on load and compressed again on
// store.
type Content struct {
	Value           []byte              `json:"value" yaml:"value"`
	ContentType     string              `json:"content_type" yaml:"content_type"`
	Charset         string              `json:"charset,omitempty" yaml:"charset,omitempty"`
	ContentEncoding string              `json:"content_encoding,omitempty" yaml:"content_encoding,omitempty"`
	VTag            string              `json:"vtag,omitempty" yaml:"vtag,omitempty"`
	Links           []Link              `json:"links,omitempty" yaml:"links,omitempty"`
	LastModified    time.Time           `json:"last_modified" yaml:"last_modified"`
	Meta            map[string]string   `json:"meta,omitempty" yaml:"meta,omitempty"`
	Indexes         map[string][]string `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Deleted         bool                `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// AddIndex adds value to the secondary index name, e.g. "email_bin".
func (c *Content) AddIndex(name, value string) {
	if c.Indexes == nil {
		c.Indexes = make(map[string][]string)
	}

	c.Indexes[name] = append(c.Indexes[name], value)
}

// Object is a value stored under a bucket and key. An object with more than
// one sibling is in conflict; storing it with one sibling resolves that.
type Object struct {
	Bucket   string    `json:"bucket" yaml:"bucket"`
	Key      string    `json:"key" yaml:"key"`
	VClock   []byte    `json:"vclock,omitempty" yaml:"vclock,omitempty"`
	Siblings []Content `json:"siblings" yaml:"siblings"`

	// PreventStaleWrites makes Store fail with kverr.StaleWrite or
	// kverr.NotModified instead of overwriting a version we have not seen.
	PreventStaleWrites bool `json:"-" yaml:"-"`
}

func NewObject(bucket, key string) *Object {
	return &Object{Bucket: bucket, Key: key}
}

// Content returns the object's first sibling, adding an empty one if there
// are none.
func (o *Object) Content() *Content {
	if len(o.Siblings) == 0 {
		o.Siblings = []Content{{}}
	}

	return &o.Siblings[0]
}

// SetValue replaces every sibling with a single value.
func (o *Object) SetValue(value []byte, contentType string) {
	o.Siblings = []Content{{Value: value, ContentType: contentType}}
}

func (o *Object) Conflict() bool {
	return len(o.Siblings) > 1
}

// load replaces the object's siblings and vclock with those of a response.
func (o *Object) load(resp *protocol.ObjectResponse) error {
	siblings := make([]Content, 0, len(resp.Content))

	for _, wire := range resp.Content {
		content, err := loadContent(wire)
		if err != nil {
			return fmt.Errorf("Failed to load %s/%s: %w", o.Bucket, o.Key, err)
		}

		siblings = append(siblings, content)
	}

	o.Siblings = siblings

	if resp.VClock != nil {
		o.VClock = resp.VClock
	}

	return nil
}

func loadContent(wire protocol.Content) (Content, error) {
	content := Content{
		Value:           wire.Value,
		ContentType:     wire.ContentType,
		Charset:         wire.Charset,
		ContentEncoding: wire.ContentEncoding,
		VTag:            wire.VTag,
	}

	if wire.Deleted != nil {
		content.Deleted = *wire.Deleted
	}

	if wire.LastMod != nil {
		var usecs int64
		if wire.LastModUsecs != nil {
			usecs = int64(*wire.LastModUsecs)
		}
		content.LastModified = time.Unix(int64(*wire.LastMod), usecs*int64(time.Microsecond)).UTC()
	}

	for _, link := range wire.Links {
		content.Links = append(content.Links, Link{Bucket: link.Bucket, Key: link.Key, Tag: link.Tag})
	}

	for _, pair := range wire.UserMeta {
		if content.Meta == nil {
			content.Meta = make(map[string]string)
		}
		content.Meta[pair.Key] = string(pair.Value)
	}

	for _, pair := range wire.Indexes {
		content.AddIndex(pair.Key, string(pair.Value))
	}

	if content.ContentEncoding == gzipEncoding && len(content.Value) > 0 {
		value, err := gunzip(content.Value)
		if err != nil {
			return Content{}, err
		}
		content.Value = value
	}

	return content, nil
}

// dump returns the wire form of the object's only sibling.
func (o *Object) dump() (protocol.Content, error) {
	if o.Conflict() {
		return protocol.Content{}, fmt.Errorf("Failed to store %s/%s: %d siblings must be resolved to one first", o.Bucket, o.Key, len(o.Siblings))
	}

	content := o.Content()

	wire := protocol.Content{
		Value:           content.Value,
		ContentType:     content.ContentType,
		Charset:         content.Charset,
		ContentEncoding: content.ContentEncoding,
	}

	if wire.Value == nil {
		wire.Value = []byte{}
	}

	for _, link := range content.Links {
		wire.Links = append(wire.Links, protocol.Link{Bucket: link.Bucket, Key: link.Key, Tag: link.Tag})
	}

	for _, key := range sortedKeys(content.Meta) {
		wire.UserMeta = append(wire.UserMeta, protocol.Pair{Key: key, Value: []byte(content.Meta[key])})
	}

	for _, name := range sortedKeys(content.Indexes) {
		for _, value := range content.Indexes[name] {
			wire.Indexes = append(wire.Indexes, protocol.Pair{Key: name, Value: []byte(value)})
		}
	}

	if wire.ContentEncoding == gzipEncoding {
		value, err := gzipValue(wire.Value)
		if err != nil {
			return protocol.Content{}, fmt.Errorf("Failed to compress %s/%s: %w", o.Bucket, o.Key, err)
		}
		wire.Value = value
	}

	return wire, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

func gunzip(value []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func gzipValue(value []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// requestOptions normalises opts and keeps what the request identified by
// code can carry to this node.
func (c *Conn) requestOptions(code protocol.MessageCode, opts quorum.Options) (quorum.Options, error) {
	normalized, err := quorum.Normalize(opts)
	if err != nil {
		return nil, err
	}

	return quorum.Prune(code, c.caps, normalized), nil
}

// Fetch reads bucket/key. A missing key fails with kverr.NotFound.
func (c *Conn) Fetch(ctx context.Context, bucket, key string, opts quorum.Options) (*Object, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	return c.fetch(ctx, bucket, key, opts)
}

func (c *Conn) fetch(ctx context.Context, bucket, key string, opts quorum.Options) (*Object, error) {
	resp, err := c.get(ctx, kverr.OpFetch, bucket, key, opts)
	if err != nil {
		return nil, err
	}

	obj := NewObject(bucket, key)
	if err := obj.load(resp); err != nil {
		return nil, err
	}

	return obj, nil
}

// Reload refreshes obj in place. The node is asked to skip the body when
// obj's vclock is still current, in which case obj is left untouched.
func (c *Conn) Reload(ctx context.Context, obj *Object, opts quorum.Options) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	withVClock := make(quorum.Options, len(opts)+1)
	for name, value := range opts {
		withVClock[name] = value
	}

	if len(obj.VClock) > 0 {
		withVClock[quorum.IfModified] = obj.VClock
	}

	resp, err := c.get(ctx, kverr.OpReload, obj.Bucket, obj.Key, withVClock)
	if err != nil {
		return err
	}

	if resp.Unchanged {
		return nil
	}

	return obj.load(resp)
}

func (c *Conn) get(ctx context.Context, op kverr.Operation, bucket, key string, opts quorum.Options) (*protocol.ObjectResponse, error) {
	opts, err := c.requestOptions(protocol.GetReq, opts)
	if err != nil {
		return nil, err
	}

	req := &protocol.GetRequest{
		Bucket:        bucket,
		Key:           key,
		R:             opts.Uint32(quorum.R),
		PR:            opts.Uint32(quorum.PR),
		BasicQuorum:   opts.Bool(quorum.BasicQuorum),
		NotFoundOk:    opts.Bool(quorum.NotFoundOk),
		IfModified:    opts.Bytes(quorum.IfModified),
		Head:          opts.Bool(quorum.Head),
		DeletedVClock: opts.Bool(quorum.DeletedVClock),
	}

	resp, err := c.roundTrip(ctx, kverr.Request{Op: op, Bucket: bucket, Key: key}, "GetReq", req, protocol.GetResp)
	if err != nil {
		return nil, err
	}

	if resp.IsBare() {
		return nil, kverr.NewNotFound(bucket, key)
	}

	return resp.Message.(*protocol.ObjectResponse), nil
}

// Store writes obj. When the node generates the key, obj.Key is set from the
// response; when the response carries the stored value (return_body or
// return_head), obj is refreshed from it.
func (c *Conn) Store(ctx context.Context, obj *Object, opts quorum.Options) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	normalized, err := quorum.Normalize(opts)
	if err != nil {
		return err
	}

	if obj.PreventStaleWrites {
		if err := c.preventStaleWrite(ctx, obj, normalized); err != nil {
			return err
		}
	}

	if _, ok := normalized[quorum.VClock]; !ok && len(obj.VClock) > 0 {
		normalized[quorum.VClock] = obj.VClock
	}

	pruned := quorum.Prune(protocol.PutReq, c.caps, normalized)

	content, err := obj.dump()
	if err != nil {
		return err
	}

	req := &protocol.PutRequest{
		Bucket:        obj.Bucket,
		Key:           obj.Key,
		VClock:        pruned.Bytes(quorum.VClock),
		Content:       content,
		W:             pruned.Uint32(quorum.W),
		DW:            pruned.Uint32(quorum.DW),
		PW:            pruned.Uint32(quorum.PW),
		ReturnBody:    pruned.Bool(quorum.ReturnBody),
		IfNotModified: pruned.Bool(quorum.IfNotModified),
		IfNoneMatch:   pruned.Bool(quorum.IfNoneMatch),
		ReturnHead:    pruned.Bool(quorum.ReturnHead),
	}

	resp, err := c.roundTrip(ctx, kverr.Request{Op: kverr.OpStore, Bucket: obj.Bucket, Key: obj.Key}, "PutReq", req, protocol.PutResp)
	if err != nil {
		return err
	}

	if resp.IsBare() {
		return nil
	}

	m := resp.Message.(*protocol.ObjectResponse)
	if m.Key != "" {
		obj.Key = m.Key
	}

	if len(m.Content) == 0 {
		return nil
	}

	return obj.load(m)
}

// preventStaleWrite makes the write conditional on obj's vclock. Nodes that
// understand conditional puts check it themselves; for the others we read
// the current version first.
func (c *Conn) preventStaleWrite(ctx context.Context, obj *Object, opts quorum.Options) error {
	if c.caps.Conditionals {
		if len(obj.VClock) > 0 {
			opts[quorum.IfNotModified] = true
		} else {
			opts[quorum.IfNoneMatch] = true
		}
		return nil
	}

	var remote []byte

	current, err := c.fetch(ctx, obj.Bucket, obj.Key, nil)
	switch {
	case kverr.IsNotFound(err):
	case err != nil:
		return err
	default:
		remote = current.VClock
	}

	if !bytes.Equal(remote, obj.VClock) {
		return kverr.New(kverr.NotModified, "", kverr.Params{Bucket: obj.Bucket, Key: obj.Key})
	}

	return nil
}

// Delete removes bucket/key. Deleting a missing key succeeds.
func (c *Conn) Delete(ctx context.Context, bucket, key string, opts quorum.Options) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	opts, err = c.requestOptions(protocol.DelReq, opts)
	if err != nil {
		return err
	}

	req := &protocol.DeleteRequest{
		Bucket: bucket,
		Key:    key,
		RW:     opts.Uint32(quorum.RW),
		VClock: opts.Bytes(quorum.VClock),
		R:      opts.Uint32(quorum.R),
		W:      opts.Uint32(quorum.W),
		PR:     opts.Uint32(quorum.PR),
		PW:     opts.Uint32(quorum.PW),
		DW:     opts.Uint32(quorum.DW),
	}

	_, err = c.roundTrip(ctx, kverr.Request{Op: kverr.OpDelete, Bucket: bucket, Key: key}, "DelReq", req, protocol.DelResp)
	return err
}

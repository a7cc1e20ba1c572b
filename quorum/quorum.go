// Package quorum normalises the per-request options of object operations
// (quorums, conditionals, vclocks) into their wire representation and drops
// the ones a request or node cannot carry.
//
// Both Normalize and Prune are pure: they never modify their input and always
// give the same output for the same input.
package quorum

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/luma/riakpb/capability"
	"github.com/luma/riakpb/protocol"
)

// Name is the name of one option.
type Name string

const (
	R    Name = "r"
	PR   Name = "pr"
	W    Name = "w"
	PW   Name = "pw"
	DW   Name = "dw"
	RW   Name = "rw"
	NVal Name = "n_val"

	BasicQuorum Name = "basic_quorum"
	NotFoundOk  Name = "notfound_ok"

	IfModified    Name = "if_modified"
	IfNotModified Name = "if_not_modified"
	IfNoneMatch   Name = "if_none_match"

	VClock        Name = "vclock"
	ReturnBody    Name = "return_body"
	ReturnHead    Name = "return_head"
	Head          Name = "head"
	DeletedVClock Name = "deletedvclock"
)

// Symbolic quorum values are sent as reserved values at the top of the uint32
// range.
const (
	One     uint32 = math.MaxUint32 - 1
	Quorum  uint32 = math.MaxUint32 - 2
	All     uint32 = math.MaxUint32 - 3
	Default uint32 = math.MaxUint32 - 4
)

var symbols = map[string]uint32{
	"one":     One,
	"quorum":  Quorum,
	"all":     All,
	"default": Default,
}

var (
	ErrInvalidValue = errors.New("Option value is not valid for the option")
)

type kind int

const (
	kindCount kind = iota
	kindFlag
	kindVClock
)

var kinds = map[Name]kind{
	R:             kindCount,
	PR:            kindCount,
	W:             kindCount,
	PW:            kindCount,
	DW:            kindCount,
	RW:            kindCount,
	NVal:          kindCount,
	BasicQuorum:   kindFlag,
	NotFoundOk:    kindFlag,
	IfNotModified: kindFlag,
	IfNoneMatch:   kindFlag,
	ReturnBody:    kindFlag,
	ReturnHead:    kindFlag,
	Head:          kindFlag,
	DeletedVClock: kindFlag,
	IfModified:    kindVClock,
	VClock:        kindVClock,
}

// Options maps option names to values. Before normalisation a count may be
// an integer, a numeric string or one of "one", "quorum", "all", "default";
// a flag may be a bool or "true"/"false"; a vclock may be raw bytes or a
// base64 string. After normalisation counts are uint32, flags are bool and
// vclocks are []byte.
type Options map[Name]interface{}

// Normalize converts every known option to its wire representation. Unknown
// names are copied through untouched for Prune to drop.
func Normalize(opts Options) (Options, error) {
	out := make(Options, len(opts))

	for name, value := range opts {
		k, known := kinds[name]
		if !known {
			out[name] = value
			continue
		}

		var (
			normalized interface{}
			err        error
		)

		switch k {
		case kindCount:
			normalized, err = normalizeCount(value)
		case kindFlag:
			normalized, err = normalizeFlag(value)
		case kindVClock:
			normalized, err = normalizeVClock(value)
		}

		if err != nil {
			return nil, fmt.Errorf("Failed to normalize '%s' = %v: %w", name, value, err)
		}

		out[name] = normalized
	}

	return out, nil
}

func normalizeCount(value interface{}) (uint32, error) {
	switch v := value.(type) {
	case uint32:
		return v, nil
	case int:
		return countFromInt(int64(v))
	case int32:
		return countFromInt(int64(v))
	case int64:
		return countFromInt(v)
	case uint:
		return countFromUint(uint64(v))
	case uint64:
		return countFromUint(v)
	case string:
		if symbol, ok := symbols[strings.ToLower(v)]; ok {
			return symbol, nil
		}

		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, ErrInvalidValue
		}
		return uint32(n), nil
	}

	return 0, ErrInvalidValue
}

func countFromInt(v int64) (uint32, error) {
	if v < 0 {
		return 0, ErrInvalidValue
	}
	return countFromUint(uint64(v))
}

func countFromUint(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, ErrInvalidValue
	}
	return uint32(v), nil
}

func normalizeFlag(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, ErrInvalidValue
		}
		return b, nil
	}

	return false, ErrInvalidValue
}

func normalizeVClock(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, ErrInvalidValue
		}
		return b, nil
	}

	return nil, ErrInvalidValue
}

// accepted lists the options each request message has a field for.
var accepted = map[protocol.MessageCode][]Name{
	protocol.GetReq: {R, PR, BasicQuorum, NotFoundOk, IfModified, Head, DeletedVClock},
	protocol.PutReq: {VClock, W, DW, PW, ReturnBody, IfNotModified, IfNoneMatch, ReturnHead},
	protocol.DelReq: {RW, VClock, R, W, PR, PW, DW},
}

// Prune returns the options the request identified by code can carry to a
// node with caps. Anything else is dropped silently, never rejected.
func Prune(code protocol.MessageCode, caps capability.Set, opts Options) Options {
	out := make(Options, len(opts))

	for _, name := range accepted[code] {
		if value, ok := opts[name]; ok && supported(code, caps, name) {
			out[name] = value
		}
	}

	return out
}

func supported(code protocol.MessageCode, caps capability.Set, name Name) bool {
	switch name {
	case PR, PW, BasicQuorum, NotFoundOk:
		return caps.QuorumControls
	case Head, ReturnHead:
		return caps.HeadRequests
	case DeletedVClock:
		return caps.TombstoneVClocks
	case VClock:
		return code != protocol.DelReq || caps.TombstoneVClocks
	case IfModified, IfNotModified, IfNoneMatch:
		return caps.Conditionals
	}

	return true
}

// Uint32 returns a normalised count, or nil when it is absent.
func (o Options) Uint32(name Name) *uint32 {
	if v, ok := o[name].(uint32); ok {
		return &v
	}
	return nil
}

// Bool returns a normalised flag, or nil when it is absent.
func (o Options) Bool(name Name) *bool {
	if v, ok := o[name].(bool); ok {
		return &v
	}
	return nil
}

// Bytes returns a normalised vclock, or nil when it is absent.
func (o Options) Bytes(name Name) []byte {
	if v, ok := o[name].([]byte); ok {
		return v
	}
	return nil
}

// Package kverr holds the errors a Riak node can report and the classifier
// that turns a node's free-text failures into them.
package kverr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a class of failure. Kinds are errors themselves so callers can
// branch with errors.Is(err, kverr.NotFound).
type Kind int

const (
	ServerError Kind = iota
	NotFound
	StaleWrite
	NotModified
	BadRequest
	InvalidQuorum
	NValViolation
	InvalidIndexQuery
	ContentTypeMissing
	InsufficientPrimaries
	InsufficientReplicas
	QuorumNotMet
	QuorumFailed
	RequestTimedOut
	PrecommitFailed
	MapReduceError
	EmptyQuery
	FeatureUnsupported
	ConnectionClosed
)

var kindNames = map[Kind]string{
	ServerError:           "server error",
	NotFound:              "not found",
	StaleWrite:            "stale write",
	NotModified:           "not modified",
	BadRequest:            "bad request",
	InvalidQuorum:         "invalid quorum",
	NValViolation:         "n_val violation",
	InvalidIndexQuery:     "invalid index query",
	ContentTypeMissing:    "content type missing",
	InsufficientPrimaries: "insufficient primaries",
	InsufficientReplicas:  "insufficient replicas",
	QuorumNotMet:          "quorum not met",
	QuorumFailed:          "quorum failed",
	RequestTimedOut:       "request timed out",
	PrecommitFailed:       "precommit failed",
	MapReduceError:        "map-reduce error",
	EmptyQuery:            "empty map-reduce query",
	FeatureUnsupported:    "feature unsupported",
	ConnectionClosed:      "connection closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Feature is an optional server capability reported by FeatureUnsupported.
type Feature string

const (
	FeatureIndexes Feature = "indexes"
	FeatureSearch  Feature = "search"
	FeatureLuwak   Feature = "luwak"
)

// QuorumCount is one requested/achieved pair reported by QuorumNotMet.
type QuorumCount struct {
	Name      string
	Requested int
	Achieved  int
}

// Params carries the context extracted while classifying a failure. Which
// fields are set depends on the Kind.
type Params struct {
	Bucket string
	Key    string

	// Quorum is the name of the offending quorum for InvalidQuorum.
	Quorum string

	// N is the bucket's n_val for NValViolation, or the value reported with
	// an InvalidQuorum.
	N int

	// Requested and Achieved are set for InsufficientPrimaries and
	// InsufficientReplicas.
	Requested int
	Achieved  int

	// Quorums are the per-quorum counts of a QuorumNotMet, in report order.
	Quorums []QuorumCount

	// Reason is the hook's explanation of a PrecommitFailed.
	Reason string

	Feature Feature
}

// Error is a classified failure. It is built once and never modified.
type Error struct {
	Kind    Kind
	Message string
	Params  Params
}

func (e *Error) Error() string {
	detail := e.detail()

	switch {
	case detail == "" && e.Message == "":
		return e.Kind.String()
	case detail == "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %s", e.Kind, detail)
	default:
		return fmt.Sprintf("%s: %s (%s)", e.Kind, detail, e.Message)
	}
}

func (e *Error) detail() string {
	p := e.Params

	switch e.Kind {
	case NotFound:
		if p.Bucket == "" && p.Key == "" {
			return ""
		}
		return fmt.Sprintf("bucket '%s' key '%s'", p.Bucket, p.Key)

	case InvalidQuorum:
		if p.Quorum == "" {
			return ""
		}
		return fmt.Sprintf("quorum '%s'", p.Quorum)

	case NValViolation:
		return fmt.Sprintf("requested quorum exceeds n_val %d", p.N)

	case InsufficientPrimaries, InsufficientReplicas:
		return fmt.Sprintf("requested %d, achieved %d", p.Requested, p.Achieved)

	case QuorumNotMet:
		parts := make([]string, 0, len(p.Quorums))
		for _, q := range p.Quorums {
			parts = append(parts, fmt.Sprintf("%s=%d/%d", q.Name, q.Requested, q.Achieved))
		}
		return strings.Join(parts, ", ")

	case PrecommitFailed:
		return p.Reason

	case FeatureUnsupported:
		return string(p.Feature)
	}

	return ""
}

// Is matches both a bare Kind and another *Error of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}

	return false
}

// New builds an Error of the given kind.
func New(kind Kind, message string, params Params) *Error {
	return &Error{Kind: kind, Message: message, Params: params}
}

func NewNotFound(bucket, key string) *Error {
	return New(NotFound, "", Params{Bucket: bucket, Key: key})
}

func NewFeatureUnsupported(feature Feature) *Error {
	return New(FeatureUnsupported, "", Params{Feature: feature})
}

// KindOf returns the Kind of err, and false when err is not a classified
// failure.
func KindOf(err error) (Kind, bool) {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind, true
	}

	var kind Kind
	if errors.As(err, &kind) {
		return kind, true
	}

	return 0, false
}

func IsNotFound(err error) bool {
	return errors.Is(err, NotFound)
}

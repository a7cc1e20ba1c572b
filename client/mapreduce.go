package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
)

const mapReduceContentType = "application/json"

// MapReduceQuery is a serialised map-reduce job.
type MapReduceQuery interface {
	// PhaseCount is the number of phases in the job's query
	PhaseCount() int

	JSON() ([]byte, error)
}

// PhaseKind is the kind of one step of a job.
type PhaseKind string

const (
	PhaseMap    PhaseKind = "map"
	PhaseReduce PhaseKind = "reduce"
	PhaseLink   PhaseKind = "link"
)

// Phase is one step of a job. Source runs as an anonymous JavaScript function
// when set, otherwise Name names a built-in JavaScript function, or Module
// and Function name an Erlang one.
type Phase struct {
	Kind PhaseKind

	Source   string
	Name     string
	Module   string
	Function string

	// Bucket and Tag filter a link phase
	Bucket string
	Tag    string

	Arg  interface{}
	Keep bool
}

// Job builds the JSON of a map-reduce job.
type Job struct {
	bucket string
	inputs [][2]string

	phases  []Phase
	timeout int
}

// NewJob starts a job over every key of bucket.
func NewJob(bucket string) *Job {
	return &Job{bucket: bucket}
}

// NewJobOver starts a job over the given [bucket, key] pairs.
func NewJobOver(inputs ...[2]string) *Job {
	return &Job{inputs: inputs}
}

func (j *Job) Map(phase Phase) *Job {
	phase.Kind = PhaseMap
	j.phases = append(j.phases, phase)
	return j
}

func (j *Job) Reduce(phase Phase) *Job {
	phase.Kind = PhaseReduce
	j.phases = append(j.phases, phase)
	return j
}

func (j *Job) Link(bucket, tag string, keep bool) *Job {
	j.phases = append(j.phases, Phase{Kind: PhaseLink, Bucket: bucket, Tag: tag, Keep: keep})
	return j
}

// Timeout sets the job's timeout in milliseconds.
func (j *Job) Timeout(ms int) *Job {
	j.timeout = ms
	return j
}

func (j *Job) PhaseCount() int {
	return len(j.phases)
}

func (j *Job) JSON() ([]byte, error) {
	var (
		out = []byte(`{"inputs":null,"query":[]}`)
		err error
	)

	if j.inputs != nil {
		out, err = sjson.SetBytes(out, "inputs", j.inputs)
	} else {
		out, err = sjson.SetBytes(out, "inputs", j.bucket)
	}
	if err != nil {
		return nil, err
	}

	for i, phase := range j.phases {
		// The last phase is always kept, otherwise the job returns nothing
		keep := phase.Keep || i == len(j.phases)-1

		if out, err = setPhase(out, i, phase, keep); err != nil {
			return nil, fmt.Errorf("Failed to serialise phase %d: %w", i, err)
		}
	}

	if j.timeout > 0 {
		if out, err = sjson.SetBytes(out, "timeout", j.timeout); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// RawJob is a job already serialised as JSON.
type RawJob []byte

func (j RawJob) PhaseCount() int {
	return int(gjson.GetBytes(j, "query.#").Int())
}

func (j RawJob) JSON() ([]byte, error) {
	if !gjson.ValidBytes(j) {
		return nil, errInvalidJob
	}

	return j, nil
}

type phaseField struct {
	name  string
	value interface{}
}

func setPhase(out []byte, i int, phase Phase, keep bool) ([]byte, error) {
	var fields []phaseField

	switch {
	case phase.Kind == PhaseLink:
		if phase.Bucket != "" {
			fields = append(fields, phaseField{"bucket", phase.Bucket})
		}
		if phase.Tag != "" {
			fields = append(fields, phaseField{"tag", phase.Tag})
		}

	case phase.Source != "":
		fields = append(fields, phaseField{"language", "javascript"}, phaseField{"source", phase.Source})

	case phase.Name != "":
		fields = append(fields, phaseField{"language", "javascript"}, phaseField{"name", phase.Name})

	default:
		fields = append(fields,
			phaseField{"language", "erlang"},
			phaseField{"module", phase.Module},
			phaseField{"function", phase.Function})
	}

	if phase.Arg != nil {
		fields = append(fields, phaseField{"arg", phase.Arg})
	}

	fields = append(fields, phaseField{"keep", keep})

	path := fmt.Sprintf("query.%d.%s.", i, phase.Kind)

	var err error
	for _, f := range fields {
		if out, err = sjson.SetBytes(out, path+f.name, f.value); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// MapReduceResult collects the results of a job by phase, in arrival order.
type MapReduceResult struct {
	phases map[int][]json.RawMessage
}

func newMapReduceResult() *MapReduceResult {
	return &MapReduceResult{phases: make(map[int][]json.RawMessage)}
}

func (r *MapReduceResult) add(phase int, results []json.RawMessage) {
	r.phases[phase] = append(r.phases[phase], results...)
}

// Phases returns the index of every phase that produced results, ascending.
func (r *MapReduceResult) Phases() []int {
	phases := make([]int, 0, len(r.phases))
	for phase := range r.phases {
		phases = append(phases, phase)
	}

	sort.Ints(phases)
	return phases
}

func (r *MapReduceResult) Phase(phase int) []json.RawMessage {
	return r.phases[phase]
}

// Last returns the results of the highest phase that produced any. For the
// usual job that only keeps its last phase, that is every result.
func (r *MapReduceResult) Last() []json.RawMessage {
	phases := r.Phases()
	if len(phases) == 0 {
		return nil
	}

	return r.phases[phases[len(phases)-1]]
}

// MapReduce runs query. With fn, each batch of results is handed over with
// its phase index as it arrives and a nil result is returned; an error from
// fn stops the job and is returned. Without fn all results are collected.
//
// Every failure the node reports while a job runs is a kverr.MapReduceError.
// A query without phases fails with kverr.EmptyQuery, before the job is
// sent, unless the node runs phaseless jobs. When the node's capabilities
// are not known yet they are detected first, which connects to the node.
func (c *Conn) MapReduce(
	ctx context.Context,
	query MapReduceQuery,
	fn func(phase int, results []json.RawMessage) error,
) (*MapReduceResult, error) {
	phaseless := query.PhaseCount() == 0
	if phaseless && c.capsKnown && !c.caps.PhaselessMapReduce {
		return nil, kverr.New(kverr.EmptyQuery, "", kverr.Params{})
	}

	job, err := query.JSON()
	if err != nil {
		return nil, err
	}

	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if phaseless && !c.caps.PhaselessMapReduce {
		return nil, kverr.New(kverr.EmptyQuery, "", kverr.Params{})
	}

	var result *MapReduceResult
	if fn == nil {
		result = newMapReduceResult()
		fn = func(phase int, results []json.RawMessage) error {
			result.add(phase, results)
			return nil
		}
	}

	err = c.streamFrames(ctx, kverr.Request{Op: kverr.OpMapReduce}, "MapRedReq",
		&protocol.MapRedRequest{Request: job, ContentType: mapReduceContentType}, protocol.MapRedResp,
		func(resp protocol.Response) (bool, error) {
			m := resp.Message.(*protocol.MapRedResponse)
			if m.Done {
				return true, nil
			}

			if m.Phase != nil && len(m.Response) > 0 {
				results, err := splitResults(m.Response)
				if err != nil {
					return false, err
				}

				if err := fn(int(*m.Phase), results); err != nil {
					return false, err
				}
			}

			return false, nil
		})
	if err != nil {
		return nil, err
	}

	return result, nil
}

var (
	errInvalidJob     = errors.New("Map-reduce job is not valid JSON")
	errInvalidResults = errors.New("Map-reduce results are not valid JSON")
)

// splitResults splits a phase's JSON array into its elements. Anything but
// an array is a single result.
func splitResults(data []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, errInvalidResults
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return []json.RawMessage{json.RawMessage(parsed.Raw)}, nil
	}

	elements := parsed.Array()
	results := make([]json.RawMessage, 0, len(elements))
	for _, e := range elements {
		results = append(results, json.RawMessage(e.Raw))
	}

	return results, nil
}

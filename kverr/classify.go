package kverr

import (
	"regexp"
	"strconv"
	"strings"
)

// Operation names the request in flight when a failure was reported. Some
// failures only mean something in the context of the request that caused
// them.
type Operation string

const (
	OpPing        Operation = "ping"
	OpClientID    Operation = "client_id"
	OpSetClientID Operation = "set_client_id"
	OpServerInfo  Operation = "server_info"
	OpListBuckets Operation = "list_buckets"
	OpFetch       Operation = "fetch_object"
	OpReload      Operation = "reload_object"
	OpStore       Operation = "store_object"
	OpDelete      Operation = "delete_object"
	OpBucketProps Operation = "get_bucket_props"
	OpSetBucket   Operation = "set_bucket_props"
	OpListKeys    Operation = "list_keys"
	OpMapReduce   Operation = "mapred"
	OpIndexQuery  Operation = "get_index"
	OpSearch      Operation = "search"
)

// Request is the context of the request in flight.
type Request struct {
	Op     Operation
	Bucket string
	Key    string
}

// Raw is a failure exactly as the node reported it. Status is zero for
// errors from the protocol buffers interface and the HTTP status code for
// failures from the HTTP interface, where Message holds the response body.
type Raw struct {
	Message string
	Status  int
}

type rule struct {
	// pattern is matched against the message, nil matches anything
	pattern *regexp.Regexp

	// when restricts the rule to some requests, nil applies to all
	when func(req Request) bool

	build func(req Request, text string, groups []string) *Error
}

func (r rule) apply(req Request, text string) (*Error, bool) {
	if r.when != nil && !r.when(req) {
		return nil, false
	}

	var groups []string
	if r.pattern != nil {
		if groups = r.pattern.FindStringSubmatch(text); groups == nil {
			return nil, false
		}
	}

	return r.build(req, text, groups), true
}

func applyRules(rules []rule, req Request, text string) (*Error, bool) {
	for _, r := range rules {
		if err, ok := r.apply(req, text); ok {
			return err, true
		}
	}

	return nil, false
}

var digits = regexp.MustCompile(`\d+`)

// numbers returns every integer in text, in order of appearance. The node's
// messages carry their counts positionally, e.g. "{w_val_unsatisfied,1,2,3,4}".
func numbers(text string) []int {
	found := digits.FindAllString(text, -1)
	nums := make([]int, 0, len(found))
	for _, s := range found {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

func nth(nums []int, i int) int {
	if i < len(nums) {
		return nums[i]
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func simple(kind Kind) func(Request, string, []string) *Error {
	return func(_ Request, text string, _ []string) *Error {
		return New(kind, text, Params{})
	}
}

func notFound(req Request, text string, _ []string) *Error {
	return New(NotFound, text, Params{Bucket: req.Bucket, Key: req.Key})
}

func replicaCounts(kind Kind) func(Request, string, []string) *Error {
	return func(_ Request, text string, _ []string) *Error {
		nums := numbers(text)
		return New(kind, text, Params{Requested: nth(nums, 0), Achieved: nth(nums, 1)})
	}
}

// writeQuorumNotMet reads four numbers positionally as requested w,
// requested dw, achieved w, achieved dw.
// TODO: this breaks silently if the node changes the order of the counts in
// its message; switch to the structured errcode once nodes send one.
func writeQuorumNotMet(_ Request, text string, _ []string) *Error {
	nums := numbers(text)
	return New(QuorumNotMet, text, Params{Quorums: []QuorumCount{
		{Name: "w", Requested: nth(nums, 0), Achieved: nth(nums, 2)},
		{Name: "dw", Requested: nth(nums, 1), Achieved: nth(nums, 3)},
	}})
}

// messageRules classify errors reported over protocol buffers. First match
// wins, so more specific patterns come first (pr_val_unsatisfied before
// r_val_unsatisfied).
var messageRules = []rule{
	{
		pattern: regexp.MustCompile(`modified|match_found`),
		build:   simple(StaleWrite),
	},
	{
		pattern: regexp.MustCompile(`notfound`),
		build:   notFound,
	},
	{
		pattern: regexp.MustCompile(`(n|r|pr|w|dw|pw)_val_violation`),
		build: func(_ Request, text string, groups []string) *Error {
			return New(InvalidQuorum, text, Params{Quorum: groups[1], N: nth(numbers(text), 0)})
		},
	},
	{
		pattern: regexp.MustCompile(`p[rw]_val_unsatisfied`),
		build:   replicaCounts(InsufficientPrimaries),
	},
	{
		pattern: regexp.MustCompile(`insufficient_vnodes`),
		build:   replicaCounts(InsufficientReplicas),
	},
	{
		pattern: regexp.MustCompile(`r_val_unsatisfied`),
		build: func(_ Request, text string, _ []string) *Error {
			nums := numbers(text)
			return New(QuorumNotMet, text, Params{Quorums: []QuorumCount{
				{Name: "r", Requested: nth(nums, 0), Achieved: nth(nums, 1)},
			}})
		},
	},
	{
		pattern: regexp.MustCompile(`w_val_unsatisfied`),
		build:   writeQuorumNotMet,
	},
	{
		pattern: regexp.MustCompile(`too_many_fails`),
		build:   simple(QuorumFailed),
	},
	{
		pattern: regexp.MustCompile(`timeout`),
		build:   simple(RequestTimedOut),
	},
	{
		pattern: regexp.MustCompile(`\{precommit_fail,\s*([^}]+)\}`),
		build: func(_ Request, text string, groups []string) *Error {
			return New(PrecommitFailed, text, Params{Reason: strings.TrimSpace(groups[1])})
		},
	},
	{
		pattern: regexp.MustCompile(`precommit_fail`),
		build:   simple(PrecommitFailed),
	},
}

// httpRules classify failures reported over HTTP, by status code. HTTP
// bodies are matched case-insensitively.
var httpRules = map[int][]rule{
	400: {
		{
			pattern: regexp.MustCompile(`(?i)query parameter`),
			build: func(_ Request, text string, _ []string) *Error {
				var name string
				if fields := strings.Fields(text); len(fields) > 0 {
					name = fields[0]
				}
				return New(InvalidQuorum, text, Params{Quorum: name})
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)invalid for bucket`),
			build: func(_ Request, text string, _ []string) *Error {
				return New(NValViolation, text, Params{N: nth(numbers(text), 0)})
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)missing content-type request header`),
			build:   simple(ContentTypeMissing),
		},
		{
			pattern: regexp.MustCompile(`(?i)invalid query`),
			build:   simple(InvalidIndexQuery),
		},
		{
			pattern: regexp.MustCompile(`(?i)invalid link header|unknown field type|could not parse field`),
			build:   simple(BadRequest),
		},
	},
	403: {
		{
			build: func(_ Request, text string, _ []string) *Error {
				return New(PrecommitFailed, text, Params{Reason: text})
			},
		},
	},
	404: {
		{
			when:  func(req Request) bool { return req.Op == OpFetch },
			build: notFound,
		},
	},
	500: {
		{
			pattern: regexp.MustCompile(`w_val_unsatisfied`),
			build:   writeQuorumNotMet,
		},
		{
			pattern: regexp.MustCompile(`insufficient_vnodes`),
			build:   replicaCounts(InsufficientReplicas),
		},
		{
			build: simple(ServerError),
		},
	},
	503: {
		{
			pattern: regexp.MustCompile(`(?i)too many write failures`),
			build:   simple(QuorumFailed),
		},
		{
			pattern: regexp.MustCompile(`(?i)request timed out`),
			build:   simple(RequestTimedOut),
		},
		{
			// the body reports achieved/requested
			pattern: regexp.MustCompile(`(?i)p[rw]-value unsatisfied: (\d+)/(\d+)`),
			build: func(_ Request, text string, groups []string) *Error {
				return New(InsufficientPrimaries, text, Params{Requested: atoi(groups[2]), Achieved: atoi(groups[1])})
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)([rw])-value unsatisfied: (\d+)/(\d+)`),
			build: func(_ Request, text string, groups []string) *Error {
				return New(QuorumNotMet, text, Params{Quorums: []QuorumCount{
					{Name: strings.ToLower(groups[1]), Requested: atoi(groups[3]), Achieved: atoi(groups[2])},
				}})
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)unable to connect`),
			build:   simple(ServerError),
		},
	},
}

// ClassifyMessage classifies an error message from the protocol buffers
// interface. It always returns an error; messages no rule recognises become
// a ServerError carrying the original text.
func ClassifyMessage(req Request, message string) *Error {
	if req.Op == OpMapReduce {
		return New(MapReduceError, message, Params{})
	}

	if err, ok := applyRules(messageRules, req, message); ok {
		return err
	}

	return New(ServerError, message, Params{})
}

// ClassifyHTTP classifies a failed HTTP response. ok is false when no rule
// matched, e.g. a 404 to anything but a fetch.
func ClassifyHTTP(req Request, status int, body string) (*Error, bool) {
	if req.Op == OpMapReduce {
		return New(MapReduceError, body, Params{}), true
	}

	return applyRules(httpRules[status], req, body)
}

// Classify classifies either shape of raw failure. It never returns nil:
// anything unrecognised becomes a ServerError carrying the raw text.
func Classify(req Request, raw Raw) *Error {
	if raw.Status == 0 {
		return ClassifyMessage(req, raw.Message)
	}

	if err, ok := ClassifyHTTP(req, raw.Status, raw.Message); ok {
		return err
	}

	return New(ServerError, raw.Message, Params{})
}

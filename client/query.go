package client

import (
	"context"

	"github.com/luma/riakpb/kverr"
	"github.com/luma/riakpb/protocol"
)

// DefaultSearchIndex is searched when no index is given.
const DefaultSearchIndex = "search"

// IndexQuery selects keys by a secondary index, either by an exact value or
// by an inclusive range.
type IndexQuery struct {
	Key string

	Range    bool
	Min, Max string
}

func IndexMatch(key string) IndexQuery {
	return IndexQuery{Key: key}
}

func IndexRange(min, max string) IndexQuery {
	return IndexQuery{Range: true, Min: min, Max: max}
}

// IndexQuery returns the keys of bucket matching q on index, e.g.
// "email_bin". Nodes without secondary indexes fail with
// kverr.FeatureUnsupported without a request being sent.
func (c *Conn) IndexQuery(ctx context.Context, bucket, index string, q IndexQuery) ([]string, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if !c.caps.Indexes {
		return nil, kverr.NewFeatureUnsupported(kverr.FeatureIndexes)
	}

	req := &protocol.IndexRequest{Bucket: bucket, Index: index}
	if q.Range {
		req.QType = protocol.IndexQueryRange
		req.RangeMin = q.Min
		req.RangeMax = q.Max
	} else {
		req.QType = protocol.IndexQueryEq
		req.Key = q.Key
	}

	resp, err := c.roundTrip(ctx, kverr.Request{Op: kverr.OpIndexQuery, Bucket: bucket}, "IndexReq", req, protocol.IndexResp)
	if err != nil {
		return nil, err
	}

	if resp.IsBare() {
		return []string{}, nil
	}

	return resp.Message.(*protocol.IndexResponse).Keys, nil
}

type SearchOptions struct {
	// Rows and Start page through the results, zero leaves them to the node
	Rows  uint32
	Start uint32

	Sort    string
	Filter  string
	Presort string

	// DF is the default field of terms without one
	DF string

	// Op is the default operator between terms, "and" or "or"
	Op string

	// FL limits the fields returned for each document
	FL []string
}

type SearchResult struct {
	Docs     []map[string]string `json:"docs" yaml:"docs"`
	MaxScore float32             `json:"max_score" yaml:"max_score"`
	NumFound uint32              `json:"num_found" yaml:"num_found"`
}

// Search runs query against index, DefaultSearchIndex when empty. Nodes
// without search fail with kverr.FeatureUnsupported without a request being
// sent.
func (c *Conn) Search(ctx context.Context, index, query string, opts SearchOptions) (*SearchResult, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if !c.caps.Search {
		return nil, kverr.NewFeatureUnsupported(kverr.FeatureSearch)
	}

	if index == "" {
		index = DefaultSearchIndex
	}

	req := &protocol.SearchRequest{
		Q:       query,
		Index:   index,
		Sort:    opts.Sort,
		Filter:  opts.Filter,
		DF:      opts.DF,
		Op:      opts.Op,
		FL:      opts.FL,
		Presort: opts.Presort,
	}

	if opts.Rows > 0 {
		req.Rows = &opts.Rows
	}
	if opts.Start > 0 {
		req.Start = &opts.Start
	}

	resp, err := c.roundTrip(ctx, kverr.Request{Op: kverr.OpSearch, Bucket: index}, "SearchQueryReq", req, protocol.SearchQueryResp)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Docs: []map[string]string{}}
	if resp.IsBare() {
		return result, nil
	}

	m := resp.Message.(*protocol.SearchResponse)
	result.MaxScore = m.MaxScore
	result.NumFound = m.NumFound

	for _, doc := range m.Docs {
		fields := make(map[string]string, len(doc.Fields))
		for _, pair := range doc.Fields {
			fields[pair.Key] = string(pair.Value)
		}
		result.Docs = append(result.Docs, fields)
	}

	return result, nil
}

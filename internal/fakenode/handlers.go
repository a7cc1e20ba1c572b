package fakenode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/riakpb/protocol"
	"github.com/luma/riakpb/storage"
)

// symbolic quorums start here, anything at or above is not a replica count
const firstSymbolicQuorum = 0xFFFFFFFB

func errorFrame(message string) frame {
	payload, _ := (&protocol.ErrorResponse{Message: message, Code: 1}).Marshal()
	return frame{code: protocol.ErrorResp, payload: payload}
}

func bare(code protocol.MessageCode) frame {
	return frame{code: code}
}

func reply(code protocol.MessageCode, msg protocol.Marshaler) frame {
	payload, err := msg.Marshal()
	if err != nil {
		return errorFrame(err.Error())
	}

	return frame{code: code, payload: payload}
}

// handle answers one request with the frames to send back, in order.
func (c *Conn) handle(code protocol.MessageCode, payload []byte) []frame {
	req, err := protocol.Decode(code, payload)
	if err != nil {
		return []frame{errorFrame(err.Error())}
	}

	switch code {
	case protocol.PingReq, protocol.GetClientIdReq, protocol.GetServerInfoReq, protocol.ListBucketsReq:
	default:
		if req.IsBare() {
			return []frame{errorFrame(fmt.Sprintf("{error,{empty_request,%s}}", code))}
		}
	}

	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()

	switch code {
	case protocol.PingReq:
		return []frame{bare(protocol.PingResp)}

	case protocol.GetClientIdReq:
		return []frame{reply(protocol.GetClientIdResp, &protocol.ClientIDResponse{ClientID: c.clientID})}

	case protocol.SetClientIdReq:
		if m, ok := req.Message.(*protocol.SetClientIDRequest); ok {
			c.clientID = m.ClientID
		}
		return []frame{bare(protocol.SetClientIdResp)}

	case protocol.GetServerInfoReq:
		return []frame{reply(protocol.GetServerInfoResp, &protocol.ServerInfoResponse{
			Node:          DefaultNodeName,
			ServerVersion: c.node.serverVersion,
		})}

	case protocol.GetReq:
		return []frame{c.get(ctx, req.Message.(*protocol.GetRequest))}

	case protocol.PutReq:
		return []frame{c.put(ctx, req.Message.(*protocol.PutRequest))}

	case protocol.DelReq:
		return []frame{c.delete(ctx, req.Message.(*protocol.DeleteRequest))}

	case protocol.ListBucketsReq:
		return []frame{c.listBuckets(ctx)}

	case protocol.ListKeysReq:
		return c.listKeys(ctx, req.Message.(*protocol.BucketRequest))

	case protocol.GetBucketReq:
		return []frame{c.getBucket(ctx, req.Message.(*protocol.BucketRequest))}

	case protocol.SetBucketReq:
		return []frame{c.setBucket(ctx, req.Message.(*protocol.SetBucketRequest))}

	case protocol.MapRedReq:
		return c.mapReduce(ctx, req.Message.(*protocol.MapRedRequest))

	case protocol.IndexReq:
		return []frame{c.index(ctx, req.Message.(*protocol.IndexRequest))}

	case protocol.SearchQueryReq:
		return []frame{c.search(ctx, req.Message.(*protocol.SearchRequest))}
	}

	c.log.Warn("Unexpected message", zap.Stringer("code", code))
	return []frame{errorFrame(fmt.Sprintf("unknown_message %d", code))}
}

// checkQuorum reports a count above the bucket's n_val the way a node does.
func (c *Conn) checkQuorum(ctx context.Context, bucket string, counts ...*uint32) (string, bool) {
	props, err := c.node.store.Props(ctx, bucket)
	if err != nil {
		return err.Error(), false
	}

	for _, count := range counts {
		if count != nil && *count < firstSymbolicQuorum && *count > props.NVal {
			return fmt.Sprintf("{n_val_violation,%d}", props.NVal), false
		}
	}

	return "", true
}

func (c *Conn) get(ctx context.Context, m *protocol.GetRequest) frame {
	if msg, ok := c.checkQuorum(ctx, m.Bucket, m.R, m.PR); !ok {
		return errorFrame(msg)
	}

	rec, err := c.node.store.Get(ctx, m.Bucket, m.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return bare(protocol.GetResp)
	} else if err != nil {
		return errorFrame(err.Error())
	}

	if m.IfModified != nil && bytes.Equal(m.IfModified, rec.VClock) {
		return reply(protocol.GetResp, &protocol.ObjectResponse{Unchanged: true})
	}

	siblings := rec.Siblings
	if m.Head != nil && *m.Head {
		siblings = headers(siblings)
	}

	return reply(protocol.GetResp, &protocol.ObjectResponse{Content: siblings, VClock: rec.VClock})
}

func (c *Conn) put(ctx context.Context, m *protocol.PutRequest) frame {
	if msg, ok := c.checkQuorum(ctx, m.Bucket, m.W, m.DW, m.PW); !ok {
		return errorFrame(msg)
	}

	key := m.Key
	generated := key == ""
	if generated {
		key = fmt.Sprintf("k%d", time.Now().UnixNano())
	}

	existing, err := c.node.store.Get(ctx, m.Bucket, key)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return errorFrame(err.Error())
	}

	if m.IfNoneMatch != nil && *m.IfNoneMatch && found {
		return errorFrame("match_found")
	}

	if m.IfNotModified != nil && *m.IfNotModified && (!found || !bytes.Equal(existing.VClock, m.VClock)) {
		return errorFrame("modified")
	}

	rec, err := c.node.store.Put(ctx, m.Bucket, key, m.VClock, m.Content)
	if err != nil {
		return errorFrame(err.Error())
	}

	resp := &protocol.ObjectResponse{}
	if generated {
		resp.Key = key
	}

	switch {
	case m.ReturnBody != nil && *m.ReturnBody:
		resp.Content = rec.Siblings
		resp.VClock = rec.VClock
	case m.ReturnHead != nil && *m.ReturnHead:
		resp.Content = headers(rec.Siblings)
		resp.VClock = rec.VClock
	case !generated:
		return bare(protocol.PutResp)
	}

	return reply(protocol.PutResp, resp)
}

func headers(siblings []protocol.Content) []protocol.Content {
	out := make([]protocol.Content, len(siblings))
	for i, content := range siblings {
		content.Value = nil
		out[i] = content
	}
	return out
}

func (c *Conn) delete(ctx context.Context, m *protocol.DeleteRequest) frame {
	if msg, ok := c.checkQuorum(ctx, m.Bucket, m.RW, m.R, m.W, m.PR, m.PW, m.DW); !ok {
		return errorFrame(msg)
	}

	if err := c.node.store.Delete(ctx, m.Bucket, m.Key); err != nil {
		return errorFrame(err.Error())
	}

	return bare(protocol.DelResp)
}

func (c *Conn) listBuckets(ctx context.Context) frame {
	buckets, err := c.node.store.Buckets(ctx)
	if err != nil {
		return errorFrame(err.Error())
	}

	if len(buckets) == 0 {
		return bare(protocol.ListBucketsResp)
	}

	return reply(protocol.ListBucketsResp, &protocol.ListBucketsResponse{Buckets: buckets})
}

func (c *Conn) listKeys(ctx context.Context, m *protocol.BucketRequest) []frame {
	keys, err := c.node.store.Keys(ctx, m.Bucket)
	if err != nil {
		return []frame{errorFrame(err.Error())}
	}

	var frames []frame

	for start := 0; start < len(keys); start += c.node.keysPerChunk {
		end := start + c.node.keysPerChunk
		if end > len(keys) {
			end = len(keys)
		}

		frames = append(frames, reply(protocol.ListKeysResp, &protocol.ListKeysResponse{Keys: keys[start:end]}))
	}

	return append(frames, reply(protocol.ListKeysResp, &protocol.ListKeysResponse{Done: true}))
}

func (c *Conn) getBucket(ctx context.Context, m *protocol.BucketRequest) frame {
	props, err := c.node.store.Props(ctx, m.Bucket)
	if err != nil {
		return errorFrame(err.Error())
	}

	return reply(protocol.GetBucketResp, &protocol.GetBucketResponse{Props: protocol.BucketProps{
		NVal:      &props.NVal,
		AllowMult: &props.AllowMult,
	}})
}

func (c *Conn) setBucket(ctx context.Context, m *protocol.SetBucketRequest) frame {
	props, err := c.node.store.Props(ctx, m.Bucket)
	if err != nil {
		return errorFrame(err.Error())
	}

	if m.Props.NVal != nil {
		props.NVal = *m.Props.NVal
	}
	if m.Props.AllowMult != nil {
		props.AllowMult = *m.Props.AllowMult
	}

	if err := c.node.store.SetProps(ctx, m.Bucket, props); err != nil {
		return errorFrame(err.Error())
	}

	return bare(protocol.SetBucketResp)
}

// mapReduce runs every job as an identity map: each input's value is sent as
// a result of the last phase, one frame per input.
func (c *Conn) mapReduce(ctx context.Context, m *protocol.MapRedRequest) []frame {
	if m.ContentType != "application/json" {
		return []frame{errorFrame(fmt.Sprintf("{error,{unsupported_content_type,%q}}", m.ContentType))}
	}

	if !gjson.ValidBytes(m.Request) {
		return []frame{errorFrame("{error,{invalid_json}}")}
	}

	job := gjson.ParseBytes(m.Request)
	phases := len(job.Get("query").Array())

	done := reply(protocol.MapRedResp, &protocol.MapRedResponse{Done: true})
	if phases == 0 {
		return []frame{done}
	}

	inputs, err := c.mapReduceInputs(ctx, job.Get("inputs"))
	if err != nil {
		return []frame{errorFrame(err.Error())}
	}

	phase := uint32(phases - 1)
	frames := make([]frame, 0, len(inputs)+1)

	for _, value := range inputs {
		var results []byte
		if gjson.ValidBytes(value) {
			results, err = sjson.SetRawBytes([]byte("[]"), "-1", value)
		} else {
			results, err = sjson.SetBytes([]byte("[]"), "-1", string(value))
		}
		if err != nil {
			return []frame{errorFrame(err.Error())}
		}

		frames = append(frames, reply(protocol.MapRedResp, &protocol.MapRedResponse{Phase: &phase, Response: results}))
	}

	return append(frames, done)
}

// mapReduceInputs resolves a bucket name or a list of [bucket, key] pairs to
// the values stored there. Missing keys are skipped.
func (c *Conn) mapReduceInputs(ctx context.Context, inputs gjson.Result) ([][]byte, error) {
	type input struct{ bucket, key string }

	var targets []input

	switch {
	case inputs.Type == gjson.String:
		keys, err := c.node.store.Keys(ctx, inputs.String())
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			targets = append(targets, input{inputs.String(), key})
		}

	case inputs.IsArray():
		for _, pair := range inputs.Array() {
			targets = append(targets, input{pair.Get("0").String(), pair.Get("1").String()})
		}

	default:
		return nil, fmt.Errorf("{error,{invalid_inputs,%s}}", inputs.Raw)
	}

	values := make([][]byte, 0, len(targets))

	for _, t := range targets {
		rec, err := c.node.store.Get(ctx, t.bucket, t.key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}

		values = append(values, rec.Siblings[0].Value)
	}

	return values, nil
}

func (c *Conn) index(ctx context.Context, m *protocol.IndexRequest) frame {
	min, max := m.Key, m.Key
	if m.QType == protocol.IndexQueryRange {
		min, max = m.RangeMin, m.RangeMax
	}

	keys, err := c.node.store.IndexQuery(ctx, m.Bucket, m.Index, min, max)
	if err != nil {
		return errorFrame(err.Error())
	}

	if len(keys) == 0 {
		return bare(protocol.IndexResp)
	}

	return reply(protocol.IndexResp, &protocol.IndexResponse{Keys: keys})
}

// search treats the index as a bucket of JSON objects and supports queries of
// the form "field:value" and "*:*".
func (c *Conn) search(ctx context.Context, m *protocol.SearchRequest) frame {
	field, want, ok := strings.Cut(m.Q, ":")
	if !ok {
		return errorFrame(fmt.Sprintf("{error,{parse_error,%q}}", m.Q))
	}

	keys, err := c.node.store.Keys(ctx, m.Index)
	if err != nil {
		return errorFrame(err.Error())
	}

	var docs []protocol.SearchDoc

	for _, key := range keys {
		rec, err := c.node.store.Get(ctx, m.Index, key)
		if err != nil {
			continue
		}

		value := rec.Siblings[0].Value
		if field != "*" && gjson.GetBytes(value, field).String() != want {
			continue
		}

		doc := protocol.SearchDoc{Fields: []protocol.Pair{{Key: "id", Value: []byte(key)}}}
		gjson.ParseBytes(value).ForEach(func(k, v gjson.Result) bool {
			doc.Fields = append(doc.Fields, protocol.Pair{Key: k.String(), Value: []byte(v.String())})
			return true
		})

		docs = append(docs, doc)
	}

	resp := &protocol.SearchResponse{NumFound: uint32(len(docs))}
	if len(docs) > 0 {
		resp.MaxScore = 1
	}

	start := 0
	if m.Start != nil && int(*m.Start) < len(docs) {
		start = int(*m.Start)
	} else if m.Start != nil {
		start = len(docs)
	}
	docs = docs[start:]

	if m.Rows != nil && int(*m.Rows) < len(docs) {
		docs = docs[:*m.Rows]
	}

	resp.Docs = docs

	return reply(protocol.SearchQueryResp, resp)
}

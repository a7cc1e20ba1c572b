package protocol

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrorResponse is the payload of an ErrorResp frame.
type ErrorResponse struct {
	Message string
	Code    uint32
}

func (m *ErrorResponse) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Message)
	return appendUint32Field(b, 2, &m.Code), nil
}

func (m *ErrorResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Message = string(f.bytes)
		case 2:
			m.Code = uint32(f.varint)
		}
		return nil
	})
}

type ClientIDResponse struct {
	ClientID []byte
}

func (m *ClientIDResponse) Marshal() ([]byte, error) {
	return appendBytesField(nil, 1, m.ClientID), nil
}

func (m *ClientIDResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.ClientID = f.copyBytes()
		}
		return nil
	})
}

type SetClientIDRequest struct {
	ClientID []byte
}

func (m *SetClientIDRequest) Marshal() ([]byte, error) {
	return appendBytesField(nil, 1, m.ClientID), nil
}

func (m *SetClientIDRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.ClientID = f.copyBytes()
		}
		return nil
	})
}

type ServerInfoResponse struct {
	Node          string
	ServerVersion string
}

func (m *ServerInfoResponse) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Node)
	return appendStringField(b, 2, m.ServerVersion), nil
}

func (m *ServerInfoResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Node = string(f.bytes)
		case 2:
			m.ServerVersion = string(f.bytes)
		}
		return nil
	})
}

type Pair struct {
	Key   string
	Value []byte
}

func (m *Pair) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Key)
	return appendBytesField(b, 2, m.Value), nil
}

func (m *Pair) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Key = string(f.bytes)
		case 2:
			m.Value = f.copyBytes()
		}
		return nil
	})
}

type Link struct {
	Bucket string
	Key    string
	Tag    string
}

func (m *Link) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Bucket)
	b = appendStringField(b, 2, m.Key)
	return appendStringField(b, 3, m.Tag), nil
}

func (m *Link) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			m.Key = string(f.bytes)
		case 3:
			m.Tag = string(f.bytes)
		}
		return nil
	})
}

// Content is one sibling of a stored object.
type Content struct {
	Value           []byte
	ContentType     string
	Charset         string
	ContentEncoding string
	VTag            string
	Links           []Link
	LastMod         *uint32
	LastModUsecs    *uint32
	UserMeta        []Pair
	Indexes         []Pair
	Deleted         *bool
}

func (m *Content) Marshal() ([]byte, error) {
	var err error

	// value is required, so it is written even when empty
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Value)
	b = appendStringField(b, 2, m.ContentType)
	b = appendStringField(b, 3, m.Charset)
	b = appendStringField(b, 4, m.ContentEncoding)
	b = appendStringField(b, 5, m.VTag)

	for i := range m.Links {
		if b, err = appendMessageField(b, 6, &m.Links[i]); err != nil {
			return nil, err
		}
	}

	b = appendUint32Field(b, 7, m.LastMod)
	b = appendUint32Field(b, 8, m.LastModUsecs)

	for i := range m.UserMeta {
		if b, err = appendMessageField(b, 9, &m.UserMeta[i]); err != nil {
			return nil, err
		}
	}

	for i := range m.Indexes {
		if b, err = appendMessageField(b, 10, &m.Indexes[i]); err != nil {
			return nil, err
		}
	}

	return appendBoolField(b, 11, m.Deleted), nil
}

func (m *Content) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Value = f.copyBytes()
		case 2:
			m.ContentType = string(f.bytes)
		case 3:
			m.Charset = string(f.bytes)
		case 4:
			m.ContentEncoding = string(f.bytes)
		case 5:
			m.VTag = string(f.bytes)
		case 6:
			var link Link
			if err := link.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Links = append(m.Links, link)
		case 7:
			m.LastMod = f.uint32()
		case 8:
			m.LastModUsecs = f.uint32()
		case 9:
			var pair Pair
			if err := pair.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.UserMeta = append(m.UserMeta, pair)
		case 10:
			var pair Pair
			if err := pair.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Indexes = append(m.Indexes, pair)
		case 11:
			m.Deleted = f.bool()
		}
		return nil
	})
}

type GetRequest struct {
	Bucket        string
	Key           string
	R             *uint32
	PR            *uint32
	BasicQuorum   *bool
	NotFoundOk    *bool
	IfModified    []byte
	Head          *bool
	DeletedVClock *bool
}

func (m *GetRequest) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Bucket)
	b = appendStringField(b, 2, m.Key)
	b = appendUint32Field(b, 3, m.R)
	b = appendUint32Field(b, 4, m.PR)
	b = appendBoolField(b, 5, m.BasicQuorum)
	b = appendBoolField(b, 6, m.NotFoundOk)
	b = appendBytesField(b, 7, m.IfModified)
	b = appendBoolField(b, 8, m.Head)
	return appendBoolField(b, 9, m.DeletedVClock), nil
}

func (m *GetRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			m.Key = string(f.bytes)
		case 3:
			m.R = f.uint32()
		case 4:
			m.PR = f.uint32()
		case 5:
			m.BasicQuorum = f.bool()
		case 6:
			m.NotFoundOk = f.bool()
		case 7:
			m.IfModified = f.copyBytes()
		case 8:
			m.Head = f.bool()
		case 9:
			m.DeletedVClock = f.bool()
		}
		return nil
	})
}

// ObjectResponse is the body of both GetResp and PutResp.
type ObjectResponse struct {
	Content   []Content
	VClock    []byte
	Unchanged bool

	// Key is only sent in a PutResp, when the server generated the key
	Key string
}

func (m *ObjectResponse) Marshal() ([]byte, error) {
	var (
		b   []byte
		err error
	)

	for i := range m.Content {
		if b, err = appendMessageField(b, 1, &m.Content[i]); err != nil {
			return nil, err
		}
	}

	b = appendBytesField(b, 2, m.VClock)

	if m.Unchanged {
		b = appendBoolField(b, 3, &m.Unchanged)
	}

	return appendStringField(b, 3, m.Key), nil
}

// Unmarshal handles field 3 by wire type: GetResp carries "unchanged" as a
// varint there and PutResp carries "key" as bytes.
func (m *ObjectResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			var content Content
			if err := content.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Content = append(m.Content, content)
		case 2:
			m.VClock = f.copyBytes()
		case 3:
			if f.typ == protowire.VarintType {
				m.Unchanged = protowire.DecodeBool(f.varint)
			} else {
				m.Key = string(f.bytes)
			}
		}
		return nil
	})
}

type PutRequest struct {
	Bucket        string
	Key           string
	VClock        []byte
	Content       Content
	W             *uint32
	DW            *uint32
	ReturnBody    *bool
	PW            *uint32
	IfNotModified *bool
	IfNoneMatch   *bool
	ReturnHead    *bool
}

func (m *PutRequest) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Bucket)
	b = appendStringField(b, 2, m.Key)
	b = appendBytesField(b, 3, m.VClock)

	b, err := appendMessageField(b, 4, &m.Content)
	if err != nil {
		return nil, err
	}

	b = appendUint32Field(b, 5, m.W)
	b = appendUint32Field(b, 6, m.DW)
	b = appendBoolField(b, 7, m.ReturnBody)
	b = appendUint32Field(b, 8, m.PW)
	b = appendBoolField(b, 9, m.IfNotModified)
	b = appendBoolField(b, 10, m.IfNoneMatch)
	return appendBoolField(b, 11, m.ReturnHead), nil
}

func (m *PutRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			m.Key = string(f.bytes)
		case 3:
			m.VClock = f.copyBytes()
		case 4:
			return m.Content.Unmarshal(f.bytes)
		case 5:
			m.W = f.uint32()
		case 6:
			m.DW = f.uint32()
		case 7:
			m.ReturnBody = f.bool()
		case 8:
			m.PW = f.uint32()
		case 9:
			m.IfNotModified = f.bool()
		case 10:
			m.IfNoneMatch = f.bool()
		case 11:
			m.ReturnHead = f.bool()
		}
		return nil
	})
}

type DeleteRequest struct {
	Bucket string
	Key    string
	RW     *uint32
	VClock []byte
	R      *uint32
	W      *uint32
	PR     *uint32
	PW     *uint32
	DW     *uint32
}

func (m *DeleteRequest) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Bucket)
	b = appendStringField(b, 2, m.Key)
	b = appendUint32Field(b, 3, m.RW)
	b = appendBytesField(b, 4, m.VClock)
	b = appendUint32Field(b, 5, m.R)
	b = appendUint32Field(b, 6, m.W)
	b = appendUint32Field(b, 7, m.PR)
	b = appendUint32Field(b, 8, m.PW)
	return appendUint32Field(b, 9, m.DW), nil
}

func (m *DeleteRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			m.Key = string(f.bytes)
		case 3:
			m.RW = f.uint32()
		case 4:
			m.VClock = f.copyBytes()
		case 5:
			m.R = f.uint32()
		case 6:
			m.W = f.uint32()
		case 7:
			m.PR = f.uint32()
		case 8:
			m.PW = f.uint32()
		case 9:
			m.DW = f.uint32()
		}
		return nil
	})
}

type ListBucketsResponse struct {
	Buckets []string
}

func (m *ListBucketsResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, bucket := range m.Buckets {
		b = appendBytesField(b, 1, []byte(bucket))
	}
	return b, nil
}

func (m *ListBucketsResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Buckets = append(m.Buckets, string(f.bytes))
		}
		return nil
	})
}

// BucketRequest is the body of ListKeysReq and GetBucketReq.
type BucketRequest struct {
	Bucket string
}

func (m *BucketRequest) Marshal() ([]byte, error) {
	return appendStringField(nil, 1, m.Bucket), nil
}

func (m *BucketRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Bucket = string(f.bytes)
		}
		return nil
	})
}

type ListKeysResponse struct {
	Keys []string
	Done bool
}

func (m *ListKeysResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, key := range m.Keys {
		b = appendBytesField(b, 1, []byte(key))
	}

	if m.Done {
		b = appendBoolField(b, 2, &m.Done)
	}

	return b, nil
}

func (m *ListKeysResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Keys = append(m.Keys, string(f.bytes))
		case 2:
			m.Done = protowire.DecodeBool(f.varint)
		}
		return nil
	})
}

type BucketProps struct {
	NVal      *uint32
	AllowMult *bool
}

func (m *BucketProps) Marshal() ([]byte, error) {
	b := appendUint32Field(nil, 1, m.NVal)
	return appendBoolField(b, 2, m.AllowMult), nil
}

func (m *BucketProps) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.NVal = f.uint32()
		case 2:
			m.AllowMult = f.bool()
		}
		return nil
	})
}

type GetBucketResponse struct {
	Props BucketProps
}

func (m *GetBucketResponse) Marshal() ([]byte, error) {
	return appendMessageField(nil, 1, &m.Props)
}

func (m *GetBucketResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			return m.Props.Unmarshal(f.bytes)
		}
		return nil
	})
}

type SetBucketRequest struct {
	Bucket string
	Props  BucketProps
}

func (m *SetBucketRequest) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Bucket)
	return appendMessageField(b, 2, &m.Props)
}

func (m *SetBucketRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			return m.Props.Unmarshal(f.bytes)
		}
		return nil
	})
}

type MapRedRequest struct {
	Request     []byte
	ContentType string
}

func (m *MapRedRequest) Marshal() ([]byte, error) {
	b := appendBytesField(nil, 1, m.Request)
	return appendStringField(b, 2, m.ContentType), nil
}

func (m *MapRedRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Request = f.copyBytes()
		case 2:
			m.ContentType = string(f.bytes)
		}
		return nil
	})
}

type MapRedResponse struct {
	Phase    *uint32
	Response []byte
	Done     bool
}

func (m *MapRedResponse) Marshal() ([]byte, error) {
	b := appendUint32Field(nil, 1, m.Phase)
	b = appendBytesField(b, 2, m.Response)

	if m.Done {
		b = appendBoolField(b, 3, &m.Done)
	}

	return b, nil
}

func (m *MapRedResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Phase = f.uint32()
		case 2:
			m.Response = f.copyBytes()
		case 3:
			m.Done = protowire.DecodeBool(f.varint)
		}
		return nil
	})
}

type IndexQueryType uint32

const (
	IndexQueryEq IndexQueryType = iota
	IndexQueryRange
)

type IndexRequest struct {
	Bucket   string
	Index    string
	QType    IndexQueryType
	Key      string
	RangeMin string
	RangeMax string
}

func (m *IndexRequest) Marshal() ([]byte, error) {
	qtype := uint32(m.QType)

	b := appendStringField(nil, 1, m.Bucket)
	b = appendStringField(b, 2, m.Index)
	b = appendUint32Field(b, 3, &qtype)
	b = appendStringField(b, 4, m.Key)
	b = appendStringField(b, 5, m.RangeMin)
	return appendStringField(b, 6, m.RangeMax), nil
}

func (m *IndexRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Bucket = string(f.bytes)
		case 2:
			m.Index = string(f.bytes)
		case 3:
			m.QType = IndexQueryType(f.varint)
		case 4:
			m.Key = string(f.bytes)
		case 5:
			m.RangeMin = string(f.bytes)
		case 6:
			m.RangeMax = string(f.bytes)
		}
		return nil
	})
}

type IndexResponse struct {
	Keys []string
}

func (m *IndexResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, key := range m.Keys {
		b = appendBytesField(b, 1, []byte(key))
	}
	return b, nil
}

func (m *IndexResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Keys = append(m.Keys, string(f.bytes))
		}
		return nil
	})
}

type SearchRequest struct {
	Q       string
	Index   string
	Rows    *uint32
	Start   *uint32
	Sort    string
	Filter  string
	DF      string
	Op      string
	FL      []string
	Presort string
}

func (m *SearchRequest) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Q)
	b = appendStringField(b, 2, m.Index)
	b = appendUint32Field(b, 3, m.Rows)
	b = appendUint32Field(b, 4, m.Start)
	b = appendStringField(b, 5, m.Sort)
	b = appendStringField(b, 6, m.Filter)
	b = appendStringField(b, 7, m.DF)
	b = appendStringField(b, 8, m.Op)
	for _, fl := range m.FL {
		b = appendBytesField(b, 9, []byte(fl))
	}
	return appendStringField(b, 10, m.Presort), nil
}

func (m *SearchRequest) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Q = string(f.bytes)
		case 2:
			m.Index = string(f.bytes)
		case 3:
			m.Rows = f.uint32()
		case 4:
			m.Start = f.uint32()
		case 5:
			m.Sort = string(f.bytes)
		case 6:
			m.Filter = string(f.bytes)
		case 7:
			m.DF = string(f.bytes)
		case 8:
			m.Op = string(f.bytes)
		case 9:
			m.FL = append(m.FL, string(f.bytes))
		case 10:
			m.Presort = string(f.bytes)
		}
		return nil
	})
}

type SearchDoc struct {
	Fields []Pair
}

func (m *SearchDoc) Marshal() ([]byte, error) {
	var (
		b   []byte
		err error
	)

	for i := range m.Fields {
		if b, err = appendMessageField(b, 1, &m.Fields[i]); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (m *SearchDoc) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			var pair Pair
			if err := pair.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Fields = append(m.Fields, pair)
		}
		return nil
	})
}

type SearchResponse struct {
	Docs     []SearchDoc
	MaxScore float32
	NumFound uint32
}

func (m *SearchResponse) Marshal() ([]byte, error) {
	var (
		b   []byte
		err error
	)

	for i := range m.Docs {
		if b, err = appendMessageField(b, 1, &m.Docs[i]); err != nil {
			return nil, err
		}
	}

	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(m.MaxScore))
	return appendUint32Field(b, 3, &m.NumFound), nil
}

func (m *SearchResponse) Unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			var doc SearchDoc
			if err := doc.Unmarshal(f.bytes); err != nil {
				return err
			}
			m.Docs = append(m.Docs, doc)
		case 2:
			m.MaxScore = math.Float32frombits(f.fixed32)
		case 3:
			m.NumFound = uint32(f.varint)
		}
		return nil
	})
}

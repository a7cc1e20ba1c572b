package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperation   = errors.New("Unknown operation could not be encoded")
	ErrUnknownMessageCode = errors.New("Unknown message code could not be decoded")
)

// Response is a decoded frame. A response whose Message is nil is the bare
// variant: the server acknowledged with the code alone and no payload.
type Response struct {
	Code    MessageCode
	Message Unmarshaler
}

// IsBare returns true when the response carried no payload.
func (r Response) IsBare() bool {
	return r.Message == nil
}

// messageTypes maps each code that carries a payload to a constructor of its
// message. Codes that never carry a payload (PingReq, PingResp, ...) are
// absent.
var messageTypes = map[MessageCode]func() Unmarshaler{
	ErrorResp:         func() Unmarshaler { return &ErrorResponse{} },
	GetClientIdResp:   func() Unmarshaler { return &ClientIDResponse{} },
	SetClientIdReq:    func() Unmarshaler { return &SetClientIDRequest{} },
	GetServerInfoResp: func() Unmarshaler { return &ServerInfoResponse{} },
	GetReq:            func() Unmarshaler { return &GetRequest{} },
	GetResp:           func() Unmarshaler { return &ObjectResponse{} },
	PutReq:            func() Unmarshaler { return &PutRequest{} },
	PutResp:           func() Unmarshaler { return &ObjectResponse{} },
	DelReq:            func() Unmarshaler { return &DeleteRequest{} },
	ListBucketsResp:   func() Unmarshaler { return &ListBucketsResponse{} },
	ListKeysReq:       func() Unmarshaler { return &BucketRequest{} },
	ListKeysResp:      func() Unmarshaler { return &ListKeysResponse{} },
	GetBucketReq:      func() Unmarshaler { return &BucketRequest{} },
	GetBucketResp:     func() Unmarshaler { return &GetBucketResponse{} },
	SetBucketReq:      func() Unmarshaler { return &SetBucketRequest{} },
	MapRedReq:         func() Unmarshaler { return &MapRedRequest{} },
	MapRedResp:        func() Unmarshaler { return &MapRedResponse{} },
	IndexReq:          func() Unmarshaler { return &IndexRequest{} },
	IndexResp:         func() Unmarshaler { return &IndexResponse{} },
	SearchQueryReq:    func() Unmarshaler { return &SearchRequest{} },
	SearchQueryResp:   func() Unmarshaler { return &SearchResponse{} },
}

// Encode looks up the code registered for operation (e.g. "GetReq") and
// serialises msg. msg may be nil for operations without a body.
func Encode(operation string, msg Marshaler) (MessageCode, []byte, error) {
	code, ok := LookupCode(operation)
	if !ok {
		return 0, nil, fmt.Errorf("Failed to encode '%s': %w", operation, ErrUnknownOperation)
	}

	if msg == nil {
		return code, nil, nil
	}

	payload, err := msg.Marshal()
	if err != nil {
		return 0, nil, fmt.Errorf("Failed to encode '%s': %w", operation, err)
	}

	return code, payload, nil
}

// Decode turns a frame back into a Response. An ErrorResp frame is never
// returned as a value: its decoded *ErrorResponse is returned as the error.
func Decode(code MessageCode, payload []byte) (Response, error) {
	if !code.Known() {
		return Response{}, fmt.Errorf("Failed to decode code %d: %w", code, ErrUnknownMessageCode)
	}

	newMessage, hasBody := messageTypes[code]

	if code == ErrorResp {
		errResp := newMessage().(*ErrorResponse)
		if err := errResp.Unmarshal(payload); err != nil {
			return Response{}, fmt.Errorf("Failed to decode %s: %w", code, err)
		}

		return Response{}, errResp
	}

	if !hasBody || len(payload) == 0 {
		return Response{Code: code}, nil
	}

	msg := newMessage()
	if err := msg.Unmarshal(payload); err != nil {
		return Response{}, fmt.Errorf("Failed to decode %s: %w", code, err)
	}

	return Response{Code: code, Message: msg}, nil
}

// Error makes an ErrorResponse usable as the error returned by Decode.
func (m *ErrorResponse) Error() string {
	return m.Message
}

package protocol

// MessageCode identifies a request or response kind on the wire. The numeric
// value is the position in the list below and must match the server exactly,
// so new codes are only ever appended.
type MessageCode uint8

const (
	ErrorResp MessageCode = iota
	PingReq
	PingResp
	GetClientIdReq
	GetClientIdResp
	SetClientIdReq
	SetClientIdResp
	GetServerInfoReq
	GetServerInfoResp
	GetReq
	GetResp
	PutReq
	PutResp
	DelReq
	DelResp
	ListBucketsReq
	ListBucketsResp
	ListKeysReq
	ListKeysResp
	GetBucketReq
	GetBucketResp
	SetBucketReq
	SetBucketResp
	MapRedReq
	MapRedResp
	IndexReq
	IndexResp
	SearchQueryReq
	SearchQueryResp

	numMessageCodes
)

var codeNames = [numMessageCodes]string{
	"ErrorResp",
	"PingReq",
	"PingResp",
	"GetClientIdReq",
	"GetClientIdResp",
	"SetClientIdReq",
	"SetClientIdResp",
	"GetServerInfoReq",
	"GetServerInfoResp",
	"GetReq",
	"GetResp",
	"PutReq",
	"PutResp",
	"DelReq",
	"DelResp",
	"ListBucketsReq",
	"ListBucketsResp",
	"ListKeysReq",
	"ListKeysResp",
	"GetBucketReq",
	"GetBucketResp",
	"SetBucketReq",
	"SetBucketResp",
	"MapRedReq",
	"MapRedResp",
	"IndexReq",
	"IndexResp",
	"SearchQueryReq",
	"SearchQueryResp",
}

var codesByName = func() map[string]MessageCode {
	m := make(map[string]MessageCode, len(codeNames))
	for i, name := range codeNames {
		m[name] = MessageCode(i)
	}
	return m
}()

func (c MessageCode) String() string {
	if c.Known() {
		return codeNames[c]
	}

	return "Unknown"
}

// Known reports whether c is one of the registered message codes.
func (c MessageCode) Known() bool {
	return c < numMessageCodes
}

// LookupCode returns the message code registered under name, e.g. "GetReq".
func LookupCode(name string) (MessageCode, bool) {
	code, ok := codesByName[name]
	return code, ok
}

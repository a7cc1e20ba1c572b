package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/protocol"
)

func uint32p(v uint32) *uint32 { return &v }
func boolp(v bool) *bool       { return &v }

var _ = Describe("Codec", func() {
	Describe("MessageCode", func() {
		It("numbers codes in declaration order", func() {
			Expect(protocol.ErrorResp).To(BeEquivalentTo(0))
			Expect(protocol.PingReq).To(BeEquivalentTo(1))
			Expect(protocol.GetReq).To(BeEquivalentTo(9))
			Expect(protocol.PutReq).To(BeEquivalentTo(11))
			Expect(protocol.ListKeysResp).To(BeEquivalentTo(18))
			Expect(protocol.MapRedReq).To(BeEquivalentTo(23))
			Expect(protocol.SearchQueryResp).To(BeEquivalentTo(28))
		})

		It("has a name for every known code", func() {
			Expect(protocol.DelResp.String()).To(Equal("DelResp"))
			Expect(protocol.MessageCode(200).String()).To(Equal("Unknown"))
		})
	})

	Describe("Encode()", func() {
		It("returns the registered code and an empty payload for bodyless requests", func() {
			code, payload, err := protocol.Encode("PingReq", nil)
			Expect(err).To(Succeed())
			Expect(code).To(Equal(protocol.PingReq))
			Expect(payload).To(BeEmpty())
		})

		It("fails for an unregistered operation", func() {
			_, _, err := protocol.Encode("FrobnicateReq", nil)
			Expect(errors.Is(err, protocol.ErrUnknownOperation)).To(BeTrue())
		})

		It("serialises the request message", func() {
			code, payload, err := protocol.Encode("GetReq", &protocol.GetRequest{
				Bucket: "b",
				Key:    "k",
				R:      uint32p(2),
			})
			Expect(err).To(Succeed())
			Expect(code).To(Equal(protocol.GetReq))

			// bucket (1, bytes), key (2, bytes), r (3, varint)
			Expect(payload).To(Equal([]byte{0x0a, 1, 'b', 0x12, 1, 'k', 0x18, 2}))
		})
	})

	Describe("Decode()", func() {
		It("returns the bare variant for an empty payload", func() {
			resp, err := protocol.Decode(protocol.GetResp, nil)
			Expect(err).To(Succeed())
			Expect(resp.IsBare()).To(BeTrue())
			Expect(resp.Code).To(Equal(protocol.GetResp))
		})

		It("returns the bare variant for codes that never carry a body", func() {
			resp, err := protocol.Decode(protocol.PingResp, nil)
			Expect(err).To(Succeed())
			Expect(resp.IsBare()).To(BeTrue())
			Expect(resp.Code).To(Equal(protocol.PingResp))
		})

		It("returns error responses as an error", func() {
			payload, err := (&protocol.ErrorResponse{Message: "timeout", Code: 1}).Marshal()
			Expect(err).To(Succeed())

			resp, err := protocol.Decode(protocol.ErrorResp, payload)
			Expect(resp.IsBare()).To(BeTrue())

			var errResp *protocol.ErrorResponse
			Expect(errors.As(err, &errResp)).To(BeTrue())
			Expect(errResp.Message).To(Equal("timeout"))
			Expect(errResp.Code).To(Equal(uint32(1)))
		})

		It("rejects unknown codes", func() {
			_, err := protocol.Decode(protocol.MessageCode(99), []byte{1})
			Expect(errors.Is(err, protocol.ErrUnknownMessageCode)).To(BeTrue())
		})

		It("decodes an object response with siblings", func() {
			original := &protocol.ObjectResponse{
				VClock: []byte("a85hYGBgzGDKBVIcypz/fgaUHjmTwZTImMfKcHbXn7MsAAA="),
				Content: []protocol.Content{
					{
						Value:       []byte(`{"name":"one"}`),
						ContentType: "application/json",
						VTag:        "tag1",
						LastMod:     uint32p(1271442363),
						Links:       []protocol.Link{{Bucket: "b", Key: "k", Tag: "t"}},
						UserMeta:    []protocol.Pair{{Key: "X-Riak-Meta-Owner", Value: []byte("me")}},
						Indexes:     []protocol.Pair{{Key: "email_bin", Value: []byte("a@b.c")}},
					},
					{Value: []byte{}, Deleted: boolp(true)},
				},
			}

			payload, err := original.Marshal()
			Expect(err).To(Succeed())

			resp, err := protocol.Decode(protocol.GetResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.IsBare()).To(BeFalse())

			decoded, ok := resp.Message.(*protocol.ObjectResponse)
			Expect(ok).To(BeTrue())
			Expect(decoded.VClock).To(Equal(original.VClock))
			Expect(decoded.Content).To(HaveLen(2))
			Expect(decoded.Content[0].Links).To(Equal(original.Content[0].Links))
			Expect(decoded.Content[0].UserMeta).To(Equal(original.Content[0].UserMeta))
			Expect(*decoded.Content[0].LastMod).To(Equal(uint32(1271442363)))
			Expect(*decoded.Content[1].Deleted).To(BeTrue())
			Expect(decoded.Unchanged).To(BeFalse())
		})

		It("tells the put response key apart from the get response unchanged flag", func() {
			payload, err := (&protocol.ObjectResponse{Key: "generated"}).Marshal()
			Expect(err).To(Succeed())

			resp, err := protocol.Decode(protocol.PutResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.Message.(*protocol.ObjectResponse).Key).To(Equal("generated"))

			payload, err = (&protocol.ObjectResponse{Unchanged: true}).Marshal()
			Expect(err).To(Succeed())

			resp, err = protocol.Decode(protocol.GetResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.Message.(*protocol.ObjectResponse).Unchanged).To(BeTrue())
		})

		It("decodes a streamed key list chunk", func() {
			payload, err := (&protocol.ListKeysResponse{Keys: []string{"a", "b"}, Done: true}).Marshal()
			Expect(err).To(Succeed())

			resp, err := protocol.Decode(protocol.ListKeysResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.Message).To(Equal(&protocol.ListKeysResponse{Keys: []string{"a", "b"}, Done: true}))
		})

		It("decodes search results", func() {
			original := &protocol.SearchResponse{
				Docs:     []protocol.SearchDoc{{Fields: []protocol.Pair{{Key: "id", Value: []byte("1")}}}},
				MaxScore: 1.5,
				NumFound: 1,
			}
			payload, err := original.Marshal()
			Expect(err).To(Succeed())

			resp, err := protocol.Decode(protocol.SearchQueryResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.Message).To(Equal(original))
		})

		It("skips fields it does not know", func() {
			// field 15 (varint) followed by node (1, bytes)
			payload := []byte{0x78, 1, 0x0a, 1, 'n'}

			resp, err := protocol.Decode(protocol.GetServerInfoResp, payload)
			Expect(err).To(Succeed())
			Expect(resp.Message.(*protocol.ServerInfoResponse).Node).To(Equal("n"))
		})

		It("fails on a truncated payload", func() {
			_, err := protocol.Decode(protocol.GetServerInfoResp, []byte{0x0a, 5, 'n'})
			Expect(err).To(HaveOccurred())
		})
	})
})

package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/protocol"
)

var _ = Describe("Framing", func() {
	Describe("WriteFrame()", func() {
		It("writes a 5 byte header for an empty payload", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteFrame(w, protocol.PingReq, nil)).To(Succeed())
			Expect(w.Bytes()).To(Equal([]byte{0, 0, 0, 1, 1}))
		})

		It("prefixes the payload with its length plus one and the code", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteFrame(w, protocol.GetReq, []byte("abc"))).To(Succeed())
			Expect(w.Bytes()).To(Equal([]byte{0, 0, 0, 4, 9, 'a', 'b', 'c'}))
		})

		It("writes the header and payload in a single write", func() {
			w := &countingWriter{}

			Expect(protocol.WriteFrame(w, protocol.PutReq, []byte("value"))).To(Succeed())
			Expect(w.writes).To(Equal(1))
		})
	})

	Describe("ReadFrame()", func() {
		It("recovers the code and payload of every message code", func() {
			payloads := [][]byte{nil, {0}, []byte("hello"), bytes.Repeat([]byte{0xff}, 4096)}

			for code := protocol.ErrorResp; code <= protocol.SearchQueryResp; code++ {
				for _, payload := range payloads {
					w := bytes.NewBuffer([]byte{})
					Expect(protocol.WriteFrame(w, code, payload)).To(Succeed())

					header, err := protocol.ParseHeader(w.Bytes())
					Expect(err).To(Succeed())
					Expect(header.Length).To(Equal(uint32(len(payload) + 1)))
					Expect(header.PayloadLen()).To(Equal(len(payload)))

					readCode, readPayload, err := protocol.ReadFrame(w)
					Expect(err).To(Succeed())
					Expect(readCode).To(Equal(code))
					Expect(readPayload).To(HaveLen(len(payload)))
					if len(payload) > 0 {
						Expect(readPayload).To(Equal(payload))
					}
				}
			}
		})

		It("reads consecutive frames from one stream", func() {
			w := bytes.NewBuffer([]byte{})
			Expect(protocol.WriteFrame(w, protocol.ListKeysResp, []byte("one"))).To(Succeed())
			Expect(protocol.WriteFrame(w, protocol.ListKeysResp, nil)).To(Succeed())

			code, payload, err := protocol.ReadFrame(w)
			Expect(err).To(Succeed())
			Expect(code).To(Equal(protocol.ListKeysResp))
			Expect(string(payload)).To(Equal("one"))

			code, payload, err = protocol.ReadFrame(w)
			Expect(err).To(Succeed())
			Expect(code).To(Equal(protocol.ListKeysResp))
			Expect(payload).To(BeEmpty())

			_, _, err = protocol.ReadFrame(w)
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
		})

		It("reports a closed connection when the header is truncated", func() {
			_, _, err := protocol.ReadFrame(bytes.NewReader([]byte{0, 0, 0}))
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
		})

		It("reports a closed connection when the payload is truncated", func() {
			_, _, err := protocol.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 10, 10, 'a'}))
			Expect(errors.Is(err, protocol.ErrConnectionClosed)).To(BeTrue())
		})

		It("rejects a zero length frame", func() {
			_, _, err := protocol.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0, 1}))
			Expect(err).To(MatchError(protocol.ErrEmptyFrame))
		})

		It("rejects a frame larger than the maximum", func() {
			_, _, err := protocol.ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 1}))
			Expect(errors.Is(err, protocol.ErrFrameTooLarge)).To(BeTrue())
		})

		It("passes through other read errors untouched", func() {
			boom := errors.New("boom")
			_, _, err := protocol.ReadFrame(&failingReader{err: boom})
			Expect(err).To(MatchError(boom))
		})
	})

	Describe("ParseHeader()", func() {
		It("needs at least 5 bytes", func() {
			_, err := protocol.ParseHeader([]byte{0, 0, 1})
			Expect(err).To(MatchError(io.ErrUnexpectedEOF))
		})
	})
})

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

type failingReader struct {
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	return 0, f.err
}

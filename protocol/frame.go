package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length prefix (4 bytes) plus the message code (1 byte)
	HeaderSize = 5

	// MaxFrameSize bounds the length prefix we are willing to allocate for.
	MaxFrameSize = 64 << 20
)

var (
	ErrConnectionClosed = errors.New("Connection closed by the server while reading a frame")
	ErrEmptyFrame       = errors.New("Frame is malformed, its length does not cover the message code")
	ErrFrameTooLarge    = errors.New("Frame is malformed, its length exceeds the maximum frame size")
)

// Header is the fixed part of every frame. Length covers the code byte plus
// the payload.
type Header struct {
	Length uint32
	Code   MessageCode
}

// NewHeader returns the header for a frame carrying payloadLen bytes.
func NewHeader(code MessageCode, payloadLen int) Header {
	return Header{Length: uint32(payloadLen) + 1, Code: code}
}

// PayloadLen is the number of payload bytes following the header.
func (h Header) PayloadLen() int {
	return int(h.Length) - 1
}

func (h Header) Marshal() []byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint32(b[0:4], h.Length)
	b[4] = byte(h.Code)
	return b[:]
}

// ParseHeader decodes the 5 header bytes at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, io.ErrUnexpectedEOF
	}

	h := Header{
		Length: binary.BigEndian.Uint32(data[0:4]),
		Code:   MessageCode(data[4]),
	}

	if h.Length == 0 {
		return Header{}, ErrEmptyFrame
	}

	if h.Length > MaxFrameSize {
		return Header{}, fmt.Errorf("Failed to parse header of %d bytes: %w", h.Length, ErrFrameTooLarge)
	}

	return h, nil
}

// WriteFrame writes the header and payload with a single Write so a frame is
// never split across two calls on the socket.
func WriteFrame(w io.Writer, code MessageCode, payload []byte) error {
	b := make([]byte, 0, HeaderSize+len(payload))
	b = append(b, NewHeader(code, len(payload)).Marshal()...)
	b = append(b, payload...)

	_, err := w.Write(b)
	return err
}

// ReadFrame reads exactly one frame: the 5 header bytes, then exactly
// length-1 payload bytes. Running out of bytes part way through a frame is
// reported as ErrConnectionClosed.
func ReadFrame(r io.Reader) (MessageCode, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, eofAsClosed(err)
	}

	h, err := ParseHeader(hdr[:])
	if err != nil {
		return 0, nil, err
	}

	payload := make([]byte, h.PayloadLen())
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, eofAsClosed(err)
		}
	}

	return h.Code, payload, nil
}

func eofAsClosed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	return err
}

package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshaler is implemented by every request message.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is implemented by every response message.
type Unmarshaler interface {
	Unmarshal(data []byte) error
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}

	return appendBytesField(b, num, []byte(v))
}

func appendUint32Field(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendBoolField(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(*v))
}

func appendMessageField(b []byte, num protowire.Number, m Marshaler) ([]byte, error) {
	data, err := m.Marshal()
	if err != nil {
		return nil, err
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data), nil
}

// field is one decoded key/value pair of a message.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

func (f field) uint32() *uint32 {
	v := uint32(f.varint)
	return &v
}

func (f field) bool() *bool {
	v := protowire.DecodeBool(f.varint)
	return &v
}

func (f field) copyBytes() []byte {
	return append([]byte{}, f.bytes...)
}

// parseFields walks every field in data. Fields of unknown number are skipped
// so newer servers can add fields without breaking older clients.
func parseFields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}

		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}

		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

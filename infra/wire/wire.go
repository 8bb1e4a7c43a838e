// Package wire holds the protobuf wire-format helpers shared by every
// persisted record and WAL command. Records are hand-encoded field by field
// with protowire so no generated code is needed.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrFieldType = errors.New("wire: unexpected field type")

// Encoder appends fields to a byte slice.
type Encoder struct {
	buf []byte
}

func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf[:0]}
}

// PutUint64 writes a varint field. Zero values are omitted.
func (e *Encoder) PutUint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// PutFixed64 writes a fixed 64-bit field even when zero. Used for key halves
// where a present zero must survive a round trip.
func (e *Encoder) PutFixed64(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, v)
}

func (e *Encoder) PutBool(num protowire.Number, v bool) {
	if v {
		e.PutUint64(num, 1)
	}
}

func (e *Encoder) PutBytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *Encoder) PutString(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// PutMessage writes a length-delimited sub message. Empty sub messages are
// still written so repeated entries keep their position.
func (e *Encoder) PutMessage(num protowire.Number, fn func(*Encoder)) {
	sub := &Encoder{}
	fn(sub)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub.buf)
}

// Data returns the encoded bytes.
func (e *Encoder) Data() []byte {
	return e.buf
}

// Field is one decoded field value.
type Field struct {
	typ protowire.Type
	v   uint64
	raw []byte
}

func (f Field) Uint64() (uint64, error) {
	switch f.typ {
	case protowire.VarintType, protowire.Fixed64Type:
		return f.v, nil
	}
	return 0, fmt.Errorf("%w: want integer, got %d", ErrFieldType, f.typ)
}

func (f Field) Bool() (bool, error) {
	v, err := f.Uint64()
	return v != 0, err
}

func (f Field) Bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: want bytes, got %d", ErrFieldType, f.typ)
	}
	return f.raw, nil
}

func (f Field) String() (string, error) {
	b, err := f.Bytes()
	return string(b), err
}

// Decode walks every field of b in order. Unknown wire types are skipped.
func Decode(b []byte, fn func(num protowire.Number, f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := Field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}

package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeDecodeFields(t *testing.T) {
	enc := NewEncoder(nil)
	enc.PutUint64(1, 42)
	enc.PutUint64(2, 0) // omitted
	enc.PutFixed64(3, 0)
	enc.PutString(4, "BTC")
	enc.PutMessage(5, func(sub *Encoder) {
		sub.PutUint64(1, 7)
	})
	enc.PutBool(6, true)

	seen := map[protowire.Number]bool{}
	err := Decode(enc.Data(), func(num protowire.Number, f Field) error {
		seen[num] = true
		switch num {
		case 1:
			v, err := f.Uint64()
			require.NoError(t, err)
			require.Equal(t, uint64(42), v)
		case 3:
			v, err := f.Uint64()
			require.NoError(t, err)
			require.Zero(t, v)
		case 4:
			s, err := f.String()
			require.NoError(t, err)
			require.Equal(t, "BTC", s)
		case 5:
			raw, err := f.Bytes()
			require.NoError(t, err)
			return Decode(raw, func(n protowire.Number, sf Field) error {
				v, err := sf.Uint64()
				require.Equal(t, protowire.Number(1), n)
				require.Equal(t, uint64(7), v)
				return err
			})
		case 6:
			v, err := f.Bool()
			require.NoError(t, err)
			require.True(t, v)
		}
		return nil
	})
	require.NoError(t, err)
	require.False(t, seen[2])
	require.True(t, seen[3])
}

func TestDecodeWrongType(t *testing.T) {
	enc := NewEncoder(nil)
	enc.PutString(1, "x")

	err := Decode(enc.Data(), func(_ protowire.Number, f Field) error {
		_, err := f.Uint64()
		return err
	})
	require.True(t, errors.Is(err, ErrFieldType))
}

func TestDecodeTruncated(t *testing.T) {
	enc := NewEncoder(nil)
	enc.PutString(1, "truncated")
	data := enc.Data()

	err := Decode(data[:len(data)-2], func(protowire.Number, Field) error { return nil })
	require.Error(t, err)
}

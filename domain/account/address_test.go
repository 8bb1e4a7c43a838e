package account

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressPadsShortInput(t *testing.T) {
	a, err := ParseAddress("0x1")
	require.NoError(t, err)
	require.Equal(t, byte(1), a[AddressLength-1])
	require.Equal(t, "0x"+repeat("00", 31)+"01", a.String())
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "0x", "zz", "0x" + repeat("ab", 33)} {
		_, err := ParseAddress(in)
		require.True(t, errors.Is(err, ErrInvalidAddress), in)
	}
}

func TestAddressJSONRoundTrip(t *testing.T) {
	type wrap struct {
		Owner Address `json:"owner"`
	}
	in := wrap{Owner: MustParse("0xabc")}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out wrap
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

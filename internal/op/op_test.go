package op

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Op{
		Nop{},
		Add{Value: 0},
		Add{Value: 7},
		Add{Value: 1<<64 - 1},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, want.Encode(&buf))

		got, consumed, err := Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, buf.Len(), consumed)
		assert.Equal(t, want, got)
	}
}

func TestDecodeAllRoundTrip(t *testing.T) {
	ops := []Op{Add{Value: 7}, Nop{}, Add{Value: 9}}

	var buf bytes.Buffer
	require.NoError(t, EncodeAll(&buf, ops))

	got, err := DecodeAll(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, ops, got)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(nil)
	require.Error(t, err)

	_, _, err = Decode([]byte{TagAdd, 1, 2, 3})
	require.Error(t, err)

	_, _, err = Decode([]byte{0xFF})
	require.Error(t, err)
}

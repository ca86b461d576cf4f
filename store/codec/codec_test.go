package codec_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/store/codec"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	enc, err := codec.Encode(v)
	require.NoError(t, err)
	dec, n, err := codec.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), n)
	return dec
}

func TestRoundTripScalars(t *testing.T) {
	require.Nil(t, roundTrip(t, nil))
	require.Equal(t, true, roundTrip(t, true))
	require.Equal(t, int64(-42), roundTrip(t, -42))
	require.Equal(t, int64(42), roundTrip(t, uint32(42)))
	require.Equal(t, 3.5, roundTrip(t, 3.5))
	require.Equal(t, "hello 世界", roundTrip(t, "hello 世界"))
	require.Equal(t, []byte("raw"), roundTrip(t, []byte("raw")))
	require.Equal(t, codec.Opaque("blob"), roundTrip(t, codec.Opaque("blob")))
}

func TestRoundTripSequence(t *testing.T) {
	seq := codec.Sequence{int64(1), "two", 3.0, nil, true}
	got := roundTrip(t, seq)
	if diff := cmp.Diff(seq, got); diff != "" {
		t.Fatalf("sequence round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripMapping(t *testing.T) {
	m := codec.Mapping{
		{Key: "a", Value: int64(1)},
		{Key: "b", Value: codec.Sequence{int64(2), int64(3)}},
	}
	got := roundTrip(t, m)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("mapping round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTruncatedErrors(t *testing.T) {
	_, _, err := codec.Decode(nil)
	require.Error(t, err)

	enc, err := codec.Encode("hello")
	require.NoError(t, err)
	_, _, err = codec.Decode(enc[:len(enc)-1])
	require.Error(t, err)
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := codec.Encode(string([]byte{0xff, 0xfe}))
	require.Error(t, err)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, _, err := codec.Decode([]byte{200})
	require.Error(t, err)
}

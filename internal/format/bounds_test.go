package format_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/internal/format"
)

func TestBoundedSliceWithinRange(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}
	got, err := format.BoundedSlice(data, 1, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestBoundedSliceRejectsOutOfRange(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}

	_, err := format.BoundedSlice(data, 4, 2)
	require.ErrorIs(t, err, format.ErrBoundsCheck)

	_, err = format.BoundedSlice(data, -1, 1)
	require.ErrorIs(t, err, format.ErrBoundsCheck)

	_, err = format.BoundedSlice(data, 1, -1)
	require.ErrorIs(t, err, format.ErrBoundsCheck)
}

func TestBoundedSliceRejectsOverflow(t *testing.T) {
	data := make([]byte, 8)
	_, err := format.BoundedSlice(data, math.MaxInt, 1)
	require.ErrorIs(t, err, format.ErrIntegerOverflow)
}

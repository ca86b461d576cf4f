package emlist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/emlist"
)

func smallOpts() store.Options {
	return store.Options{ExtentSizeLog2: 20, WindowCapacity: 2}
}

func TestAppendGetSet(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Append(int64(i)))
	}
	require.Equal(t, uint64(100), l.Len())

	v, err := l.Get(42)
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	require.NoError(t, l.Set(42, "replaced"))
	v, err = l.Get(42)
	require.NoError(t, err)
	require.Equal(t, "replaced", v)
}

func TestGetOutOfRange(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(1))
	_, err = l.Get(5)
	require.Error(t, err)
	serr, ok := err.(*store.Error)
	require.True(t, ok)
	require.Equal(t, store.KindIndexOutOfRange, serr.Kind)
}

func TestRoundTripDurability(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Append(int64(i)))
	}
	require.NoError(t, l.Close())

	reopened, err := emlist.Open(dir, store.Options{})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(1000), reopened.Len())
	v, err := reopened.Get(500)
	require.NoError(t, err)
	require.Equal(t, int64(500), v)
}

func TestIterAscending(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(int64(i)))
	}

	var seen []int64
	require.NoError(t, l.Iter(func(i uint64, v any) bool {
		seen = append(seen, v.(int64))
		return true
	}))
	for i, v := range seen {
		require.Equal(t, int64(i), v)
	}
	require.Len(t, seen, 10)
}

func TestWithValue(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(int64(1)))
	require.NoError(t, l.WithValue(0, func(v any) (any, error) {
		return v.(int64) + 41, nil
	}))
	v, err := l.Get(0)
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestReopenWithDifferentWindowCapacity(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, store.Options{ExtentSizeLog2: 20, WindowCapacity: 8})
	require.NoError(t, err)

	// Enough values to span several 1 MiB extents.
	for i := 0; i < 50000; i++ {
		require.NoError(t, l.Append(int64(i)))
	}
	require.NoError(t, l.Close())

	// Reopen with a much smaller window than the container was created
	// with; spec.md §6 treats window capacity as a per-open runtime
	// setting, not a persisted header field.
	reopened, err := emlist.Open(dir, store.Options{WindowCapacity: 1})
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Iter(func(i uint64, v any) bool {
		require.Equal(t, int64(i), v)
		require.LessOrEqual(t, reopened.Container().ResidentExtents(), 1)
		return true
	}))
}

func TestGrowsPastMultipleExtents(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, smallOpts())
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 200000; i++ {
		require.NoError(t, l.Append(int64(i)))
	}
	require.Equal(t, uint64(200000), l.Len())
	v, err := l.Get(199999)
	require.NoError(t, err)
	require.Equal(t, int64(199999), v)
}

package emdict_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/emdict"
)

func smallOpts(initialSlots uint64) store.Options {
	return store.Options{ExtentSizeLog2: 20, WindowCapacity: 4, InitialDictSlots: initialSlots}
}

func TestPutGetDelete(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(1024))
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 10000; i++ {
		require.NoError(t, d.Put(fmt.Sprintf("k%d", i), int64(i)))
	}
	require.Equal(t, uint64(10000), d.Len())

	v, err := d.Get("k4242")
	require.NoError(t, err)
	require.Equal(t, int64(4242), v)

	require.NoError(t, d.Put("k4242", "updated"))
	v, err = d.Get("k4242")
	require.NoError(t, err)
	require.Equal(t, "updated", v)

	require.NoError(t, d.Delete("k4242"))
	ok, err := d.Contains("k4242")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = d.Get("k4242")
	require.Error(t, err)
	serr, ok2 := err.(*store.Error)
	require.True(t, ok2)
	require.Equal(t, store.KindKeyMissing, serr.Kind)
}

func TestDeleteMissingKey(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(16))
	require.NoError(t, err)
	defer d.Close()

	err = d.Delete("nope")
	require.Error(t, err)
	serr, ok := err.(*store.Error)
	require.True(t, ok)
	require.Equal(t, store.KindKeyMissing, serr.Kind)
}

func TestRehashOnOccupancy(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(8))
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 7; i++ {
		require.NoError(t, d.Put(fmt.Sprintf("key%d", i), i))
	}
	for i := 0; i < 7; i++ {
		v, err := d.Get(fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.Equal(t, int64(i), v)
	}
	// The sixth insert brings occupancy to 6/8, the 0.75 threshold, which
	// doubles the table to 16 slots.
	require.Equal(t, uint64(16), d.Container().SlotCount())
}

func TestUpdateThenDeleteTracksTombstones(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(16))
	require.NoError(t, err)

	require.NoError(t, d.Put("a", "hello"))
	require.NoError(t, d.Put("a", "world"))
	v, err := d.Get("a")
	require.NoError(t, err)
	require.Equal(t, "world", v)

	require.NoError(t, d.Delete("a"))
	ok, err := d.Contains("a")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(0), d.Len())
	require.Equal(t, uint64(1), d.Container().Tombstones())
	require.NoError(t, d.Close())
}

func TestRoundTripDurability(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(64))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, d.Put(fmt.Sprintf("key-%d", i), int64(i*2)))
	}
	require.NoError(t, d.Close())

	reopened, err := emdict.Open(dir, store.Options{})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(500), reopened.Len())
	v, err := reopened.Get("key-250")
	require.NoError(t, err)
	require.Equal(t, int64(500), v)
}

func TestReopenWithDifferentWindowCapacity(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(64))
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		require.NoError(t, d.Put(fmt.Sprintf("key-%d", i), int64(i)))
	}
	require.NoError(t, d.Close())

	reopened, err := emdict.Open(dir, store.Options{WindowCapacity: 1})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(500), reopened.Len())
	v, err := reopened.Get("key-250")
	require.NoError(t, err)
	require.Equal(t, int64(250), v)
	require.LessOrEqual(t, reopened.Container().ResidentExtents(), 1)
}

func TestIterItemsMultiset(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(16))
	require.NoError(t, err)
	defer d.Close()

	want := map[string]int64{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%d", i)
		want[k] = int64(i)
		require.NoError(t, d.Put(k, int64(i)))
	}

	got := map[string]int64{}
	require.NoError(t, d.IterItems(func(k, v any) bool {
		got[k.(string)] = v.(int64)
		return true
	}))
	require.Equal(t, want, got)
}

func TestSecondOpenFails(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(16))
	require.NoError(t, err)
	defer d.Close()

	_, err = emdict.Open(dir, store.Options{})
	require.Error(t, err)
}

func TestWithValue(t *testing.T) {
	dir := t.TempDir()
	d, err := emdict.Create(dir, smallOpts(16))
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Put("counter", int64(1)))
	require.NoError(t, d.WithValue("counter", func(v any) (any, error) {
		return v.(int64) + 1, nil
	}))
	v, err := d.Get("counter")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

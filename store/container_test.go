package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/store"
	"github.com/grhack/emstore/store/emlist"
)

func TestSecondOpenInProcessFails(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, store.Options{ExtentSizeLog2: 20})
	require.NoError(t, err)
	defer l.Close()

	_, err = emlist.Open(dir, store.Options{})
	require.Error(t, err)
	serr, ok := err.(*store.Error)
	require.True(t, ok)
	require.Equal(t, store.KindAlreadyOpen, serr.Kind)
}

func TestReopenAfterCloseSucceeds(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, store.Options{ExtentSizeLog2: 20})
	require.NoError(t, err)
	require.NoError(t, l.Append(int64(7)))
	require.NoError(t, l.Close())

	reopened, err := emlist.Open(dir, store.Options{})
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get(0)
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
}

func TestFlushIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, store.Options{ExtentSizeLog2: 20})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(int64(1)))
	require.NoError(t, l.Flush())
	before, err := os.ReadFile(filepath.Join(dir, "header"))
	require.NoError(t, err)

	require.NoError(t, l.Flush())
	after, err := os.ReadFile(filepath.Join(dir, "header"))
	require.NoError(t, err)

	require.Equal(t, before, after)
}

func TestCorruptedHeaderByteOnReopenIsCorruption(t *testing.T) {
	dir := t.TempDir()
	l, err := emlist.Create(dir, store.Options{ExtentSizeLog2: 20})
	require.NoError(t, err)
	require.NoError(t, l.Append(int64(1)))
	require.NoError(t, l.Close())

	// Zero the size field (first 4 bytes) of the first record allocated in
	// ext-0000 -- the cell array behind the spine -- so it declares a size
	// smaller than a record header can ever legitimately have.
	extPath := filepath.Join(dir, "ext-0000")
	data, err := os.ReadFile(extPath)
	require.NoError(t, err)
	for i := 8; i < 12; i++ {
		data[i] = 0
	}
	require.NoError(t, os.WriteFile(extPath, data, 0o644))

	_, err = emlist.Open(dir, store.Options{})
	require.Error(t, err)
	serr, ok := err.(*store.Error)
	require.True(t, ok)
	require.Equal(t, store.KindCorruption, serr.Kind)
}

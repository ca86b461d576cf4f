package extentio_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grhack/emstore/internal/extentio"
)

func TestCreateWriteReopen(t *testing.T) {
	dir := t.TempDir()

	ext, err := extentio.Create(dir, 0, 1<<20)
	require.NoError(t, err)
	copy(ext.Bytes(), []byte("hello extent"))
	require.NoError(t, ext.Sync())
	require.NoError(t, ext.Close())

	reopened, err := extentio.Open(dir, 0, 1<<20)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, "hello extent", string(reopened.Bytes()[:12]))
}

func TestCreateRejectsDuplicateIndex(t *testing.T) {
	dir := t.TempDir()
	ext, err := extentio.Create(dir, 0, 1<<20)
	require.NoError(t, err)
	defer ext.Close()

	_, err = extentio.Create(dir, 0, 1<<20)
	require.Error(t, err)
}

func TestOpenRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	ext, err := extentio.Create(dir, 0, 1<<20)
	require.NoError(t, err)
	require.NoError(t, ext.Close())

	_, err = extentio.Open(dir, 0, 2<<20)
	require.Error(t, err)
}

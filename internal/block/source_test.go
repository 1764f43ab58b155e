package block_test

import (
	"io"
	"testing"

	"github.com/ostafen/digler/internal/block"
	"github.com/stretchr/testify/require"
)

func TestMemSource_ReadAt(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}

	src := block.NewMemSource("test.img", data, 512)
	require.EqualValues(t, 4096, src.Length())
	require.EqualValues(t, 512, src.SectorSize())
	require.Equal(t, "test.img", src.Identity())

	buf := make([]byte, 16)
	n, err := src.ReadAt(buf, 100)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, data[100:116], buf)

	// short read at the tail surfaces io.EOF with partial data
	n, err = src.ReadAt(buf, 4090)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 6, n)
	require.Equal(t, data[4090:4096], buf[:n])

	// reading past the end returns no bytes
	n, err = src.ReadAt(buf, 5000)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, n)
}

func TestSectionSource_ClampsToWindow(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	parent := block.NewMemSource("disk.img", data, 512)

	section := block.NewSectionSource(parent, "p1", 512, 256)
	require.EqualValues(t, 256, section.Length())

	buf := make([]byte, 256)
	n, err := section.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 256, n)
	require.Equal(t, data[512:768], buf)

	n, err = section.ReadAt(buf, 250)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 6, n)
	require.Equal(t, data[762:768], buf[:n])
}

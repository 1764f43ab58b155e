package carve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/sig"
)

func jpegOnly(t *testing.T) []sig.Signature {
	t.Helper()
	sigs, err := sig.ByExt("jpg")
	require.NoError(t, err)
	return sigs
}

// buildMinimalJPEG returns a structurally valid (if content-free) JPEG:
// SOI, one APP0 segment padded well past the signature's MinSize, EOI.
func buildMinimalJPEG(payloadLen int) []byte {
	out := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	segLen := payloadLen + 2
	out = append(out, byte(segLen>>8), byte(segLen))
	out = append(out, make([]byte, payloadLen)...)
	out = append(out, 0xFF, 0xD9)
	return out
}

func TestSweep_FindsSingleEmbeddedJPEG(t *testing.T) {
	jpeg := buildMinimalJPEG(200)

	data := make([]byte, 0, 4096+len(jpeg)+512)
	data = append(data, make([]byte, 4096)...)
	jpegOffset := len(data)
	data = append(data, jpeg...)
	data = append(data, make([]byte, 512)...)

	src := block.NewMemSource("test.img", data, 512)

	var found []*sig.Candidate
	err := Sweep(context.Background(), src, Options{
		Signatures: jpegOnly(t),
		ChunkSize:  1024,
	}, func(c *sig.Candidate) {
		found = append(found, c)
	}, nil)

	require.NoError(t, err)
	require.Len(t, found, 1)
	require.EqualValues(t, jpegOffset, *found[0].Offset)
	require.EqualValues(t, len(jpeg), found[0].Size)
	require.False(t, found[0].Partial)
}

func TestSweep_RejectsBelowMinSize(t *testing.T) {
	data := make([]byte, 2048)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xD9}) // SOI immediately followed by EOI: far too small

	src := block.NewMemSource("test.img", data, 512)

	var found []*sig.Candidate
	err := Sweep(context.Background(), src, Options{
		Signatures: jpegOnly(t),
		ChunkSize:  1024,
	}, func(c *sig.Candidate) {
		found = append(found, c)
	}, nil)

	require.NoError(t, err)
	require.Empty(t, found)
}

func TestSweep_FindsJPEGStraddlingChunkBoundary(t *testing.T) {
	const chunkSize = 1024

	jpeg := buildMinimalJPEG(200)
	// Place the header's magic bytes (0xFF 0xD8 0xFF) so they straddle the
	// boundary between the first and second chunk: the header starts
	// inside chunk 0's own span but its last magic byte lands in chunk 1.
	jpegOffset := chunkSize - 2

	data := make([]byte, jpegOffset)
	data = append(data, jpeg...)
	data = append(data, make([]byte, 512)...)

	src := block.NewMemSource("test.img", data, 512)

	var found []*sig.Candidate
	err := Sweep(context.Background(), src, Options{
		Signatures: jpegOnly(t),
		ChunkSize:  chunkSize,
	}, func(c *sig.Candidate) {
		found = append(found, c)
	}, nil)

	require.NoError(t, err)
	require.Len(t, found, 1)
	require.EqualValues(t, jpegOffset, *found[0].Offset)
	require.EqualValues(t, len(jpeg), found[0].Size)
}

func TestSweep_ReportsProgress(t *testing.T) {
	jpeg := buildMinimalJPEG(200)
	data := make([]byte, 0, 8192+len(jpeg))
	data = append(data, make([]byte, 8192)...)
	data = append(data, jpeg...)

	src := block.NewMemSource("test.img", data, 512)

	var last Progress
	err := Sweep(context.Background(), src, Options{
		Signatures: jpegOnly(t),
		ChunkSize:  1024,
	}, func(c *sig.Candidate) {}, func(p Progress) {
		last = p
	})

	require.NoError(t, err)
	require.Equal(t, 1, last.FilesFound)
	require.Equal(t, 1, last.PerType["jpg"])
	require.Greater(t, last.SectorsVisited, uint64(0))
}

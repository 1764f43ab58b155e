package fingerprint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSum_MatchesIncrementalWrites(t *testing.T) {
	data := bytes.Repeat([]byte("recovered-bytes"), 1024)

	whole, n, err := Sum(bytes.NewReader(data), 0)
	require.NoError(t, err)
	require.EqualValues(t, len(data), n)

	h := New()
	for _, chunk := range bytes.SplitAfter(data, []byte("bytes")) {
		_, err := h.Write(chunk)
		require.NoError(t, err)
	}
	incremental := h.Sum()

	require.Equal(t, whole.MD5, incremental.MD5)
	require.Equal(t, whole.SHA256, incremental.SHA256)
}

func TestSum_RespectsLimit(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 4096)

	limited, n, err := Sum(bytes.NewReader(data), 1024)
	require.NoError(t, err)
	require.EqualValues(t, 1024, n)

	full, _, err := Sum(bytes.NewReader(data[:1024]), 0)
	require.NoError(t, err)
	require.Equal(t, full.SHA256, limited.SHA256)
}

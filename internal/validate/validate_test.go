package validate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildMinimalJPEG(payloadLen int) []byte {
	out := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	segLen := payloadLen + 2
	out = append(out, byte(segLen>>8), byte(segLen))
	out = append(out, make([]byte, payloadLen)...)
	out = append(out, 0xFF, 0xD9)
	return out
}

func TestCheck_CompleteJPEGScoresHigh(t *testing.T) {
	data := buildMinimalJPEG(200)

	result, err := Check("jpg", uint64(len(data)), bytes.NewReader(data), Options{})
	require.NoError(t, err)
	require.False(t, result.Rejected)
	require.False(t, result.Partial)
	require.Equal(t, 100, result.Score)
	require.Equal(t, "Excellent", result.Category)
}

func TestCheck_TruncatedJPEGIsPartial(t *testing.T) {
	data := buildMinimalJPEG(200)
	truncated := data[:len(data)-2] // drop the EOI marker

	result, err := Check("jpg", uint64(len(truncated)), bytes.NewReader(truncated), Options{})
	require.NoError(t, err)
	require.False(t, result.Rejected)
	require.True(t, result.Partial)
	require.Equal(t, 75, result.Score)
}

func TestCheck_RejectsAllZeroBody(t *testing.T) {
	data := make([]byte, 200)

	result, err := Check("jpg", uint64(len(data)), bytes.NewReader(data), Options{})
	require.NoError(t, err)
	require.True(t, result.Rejected)
}

func TestCheck_RejectsBelowMinSize(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	result, err := Check("jpg", uint64(len(data)), bytes.NewReader(data), Options{})
	require.NoError(t, err)
	require.True(t, result.Rejected)
}

package ntfs

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDataRuns_SingleContiguousRun(t *testing.T) {
	attr := make([]byte, 64)
	// minimal non-resident header through RealSize (offset 48..56)
	attr[32] = 64 // data runs offset
	attr[48] = 0x00
	attr[49] = 0x10 // real size = 0x1000 = 4096

	runs := append(attr, []byte{
		0x11,       // header: 1 length byte, 1 offset byte
		0x05,       // length = 5 clusters
		0x02,       // offset = +2 (first run, so LCN = 2)
		0x00,       // terminator
	}...)

	decoded, realSize := parseDataRuns(runs)
	require.EqualValues(t, 4096, realSize)
	require.Len(t, decoded, 1)
	require.EqualValues(t, 2, decoded[0].Offset)
	require.EqualValues(t, 5, decoded[0].Length)
	require.False(t, decoded[0].Sparse)
}

func TestParseDataRuns_SparseRun(t *testing.T) {
	attr := make([]byte, 48+8)
	attr[32] = 48
	attr[48] = 0x00
	attr[49] = 0x10

	runs := append(attr, []byte{
		0x03, // header: 3 length bytes, 0 offset bytes -> sparse
		0x00, 0x10, 0x00,
		0x00,
	}...)

	decoded, _ := parseDataRuns(runs)
	require.Len(t, decoded, 1)
	require.True(t, decoded[0].Sparse)
	require.EqualValues(t, 0x1000, decoded[0].Length)
}

func TestParseAttributes_ResidentDataAttribute(t *testing.T) {
	record := make([]byte, 128)
	binary.LittleEndian.PutUint16(record[20:22], 24) // first attribute offset
	binary.LittleEndian.PutUint16(record[22:24], 0)   // flags: not in-use (deleted), not a directory

	const attrOffset = 24
	const attrLen = 40
	payload := []byte("HELLO WORLD")

	binary.LittleEndian.PutUint32(record[attrOffset:], attrData)
	binary.LittleEndian.PutUint32(record[attrOffset+4:], attrLen)
	record[attrOffset+8] = 0 // resident
	binary.LittleEndian.PutUint32(record[attrOffset+16:], uint32(len(payload)))
	binary.LittleEndian.PutUint16(record[attrOffset+20:], 24) // value offset, relative to attribute start
	copy(record[attrOffset+24:], payload)

	binary.LittleEndian.PutUint32(record[attrOffset+attrLen:], attrEnd)

	rec, err := parseAttributes(record)
	require.NoError(t, err)
	require.True(t, rec.Deleted)
	require.False(t, rec.IsDirectory)
	require.Equal(t, payload, rec.Resident)
	require.EqualValues(t, len(payload), rec.Size)
	require.Nil(t, rec.DataRuns)
}

func TestApplyFixup_RestoresSectorTail(t *testing.T) {
	record := make([]byte, 1024)
	copy(record, "FILE")
	record[4], record[5] = 48, 0 // update seq offset = 48
	record[6], record[7] = 3, 0  // update seq size = 3 (covers 2 sectors)

	signature := []byte{0xAB, 0xCD}
	record[48], record[49] = signature[0], signature[1]
	orig1 := []byte{0x11, 0x22}
	orig2 := []byte{0x33, 0x44}
	copy(record[50:52], orig1)
	copy(record[52:54], orig2)

	copy(record[510:512], signature)
	copy(record[1022:1024], signature)

	require.NoError(t, applyFixup(record, 512))
	require.Equal(t, orig1, record[510:512])
	require.Equal(t, orig2, record[1022:1024])
}

package manifest

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler/internal/sig"
)

func TestBuild_PopulatesStatisticsAndFileEntries(t *testing.T) {
	offset := uint64(4096)
	carved := &sig.Candidate{
		Provenance:     sig.ProvenanceCarving,
		SourceIdentity: "test.img",
		Offset:         &offset,
		Size:           1024,
		Name:           "f00001000.jpg",
		Ext:            "jpg",
		Score:          95,
		MD5:            "aaaa",
		SHA256:         "bbbb",
	}
	metaFile := &sig.Candidate{
		Provenance:     sig.ProvenanceFAT,
		SourceIdentity: "test.img",
		Runs:           []sig.ClusterRun{{FirstCluster: 2, Count: 3}},
		Size:           2048,
		Name:           "RECOVERED.TXT",
		Ext:            "txt",
		Score:          70,
		Partial:        true,
		MD5:            "cccc",
		SHA256:         "dddd",
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Second)

	m := Build("carving", "test.img", start, end, 1000, false, []*sig.Candidate{carved, metaFile})

	require.Equal(t, "carving", m.ScanInfo.Mode)
	require.Equal(t, uint32(2), m.Statistics.TotalFiles)
	require.Equal(t, uint32(2), m.Statistics.UniqueFiles)
	require.Equal(t, uint32(1), m.Statistics.PartialFiles)
	require.Equal(t, uint64(3072), m.Statistics.TotalSizeBytes)
	require.Len(t, m.Files, 2)

	require.EqualValues(t, offset, *m.Files[0].Offset)
	require.Equal(t, "signature_carving", m.Files[0].Method)
	require.Equal(t, "metadata_fat", m.Files[1].Method)
	require.Equal(t, [][2]uint64{{2, 3}}, m.Files[1].Runs)
	require.Equal(t, "RECOVERED.TXT.partial.txt", m.Files[1].Filename)
}

func TestWrite_ProducesValidJSON(t *testing.T) {
	m := Build("quick", "test.img", time.Now(), time.Now(), 0, false, nil)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Contains(t, decoded, "scan_info")
	require.Contains(t, decoded, "statistics")
	require.Contains(t, decoded, "files")
}

// Package manifest implements the manifest writer named in spec.md §6:
// the single JSON artifact a scan produces, built via encoding/json to
// match the cross-implementation wire shape exactly, plus a DFXML
// export path that reuses the teacher's pkg/dfxml writer for tools
// already speaking that format.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ostafen/digler/internal/sig"
)

// ScanInfo is the manifest header, recorded once per scan.
type ScanInfo struct {
	Mode                string  `json:"mode"`
	Timestamp           string  `json:"timestamp"`
	SourceID            string  `json:"source_id"`
	TotalSectorsScanned uint64  `json:"total_sectors_scanned"`
	ScanDurationSeconds float64 `json:"scan_duration_seconds"`
	Incomplete          bool    `json:"incomplete"`
}

// Statistics is the manifest's aggregate summary.
type Statistics struct {
	TotalFiles     uint32 `json:"total_files"`
	UniqueFiles    uint32 `json:"unique_files"`
	PartialFiles   uint32 `json:"partial_files"`
	TotalSizeBytes uint64 `json:"total_size_bytes"`
	DiskSpaceUsed  uint64 `json:"disk_space_used"`
}

// FileEntry is one recovered-file record, matching spec.md §6's "files"
// array exactly (including the `runs` nested-pair shape and the
// offset/runs mutual exclusivity carried from Candidate).
type FileEntry struct {
	Filename        string      `json:"filename"`
	ProposedPath    string      `json:"proposed_path"`
	SizeBytes       uint64      `json:"size_bytes"`
	Offset          *uint64     `json:"offset"`
	Runs            [][2]uint64 `json:"runs"`
	Resident        []byte      `json:"resident_data,omitempty"`
	FileType        string      `json:"file_type"`
	Extension       string      `json:"extension"`
	MD5             string      `json:"md5"`
	SHA256          string      `json:"sha256"`
	ValidationScore int         `json:"validation_score"`
	IsPartial       bool        `json:"is_partial"`
	Method          string      `json:"method"`
	SourceID        string      `json:"source_id"`
}

// Manifest is the full document written to manifest.json.
type Manifest struct {
	ScanInfo   ScanInfo    `json:"scan_info"`
	Statistics Statistics  `json:"statistics"`
	Files      []FileEntry `json:"files"`
}

// Build assembles a Manifest from the deduplicated, validated Candidate
// set plus scan bookkeeping. The count of candidates dropped by dedup
// is only logged upstream by Execute; it is not a manifest field.
func Build(mode, sourceID string, start, end time.Time, sectorsVisited uint64, incomplete bool, candidates []*sig.Candidate) *Manifest {
	m := &Manifest{
		ScanInfo: ScanInfo{
			Mode:                mode,
			Timestamp:           start.UTC().Format(time.RFC3339),
			SourceID:            sourceID,
			TotalSectorsScanned: sectorsVisited,
			ScanDurationSeconds: end.Sub(start).Seconds(),
			Incomplete:          incomplete,
		},
		Files: make([]FileEntry, 0, len(candidates)),
	}

	var totalSize uint64
	var partial uint32
	seen := map[string]bool{}

	for _, c := range candidates {
		entry := FileEntry{
			Filename:        c.DisplayName(),
			ProposedPath:    c.DisplayName(),
			SizeBytes:       c.Size,
			FileType:        c.Ext,
			Extension:       c.Ext,
			MD5:             c.MD5,
			SHA256:          c.SHA256,
			ValidationScore: c.Score,
			IsPartial:       c.Partial,
			Method:          methodName(c.Provenance),
			SourceID:        c.SourceIdentity,
		}
		if c.Offset != nil {
			off := *c.Offset
			entry.Offset = &off
		}
		if len(c.Runs) > 0 {
			entry.Runs = make([][2]uint64, len(c.Runs))
			for i, r := range c.Runs {
				entry.Runs[i] = [2]uint64{r.FirstCluster, r.Count}
			}
		}
		if c.Resident != nil {
			entry.Resident = c.Resident
		}

		m.Files = append(m.Files, entry)
		totalSize += c.Size
		if c.Partial {
			partial++
		}
		if c.SHA256 != "" && !seen[c.SHA256] {
			seen[c.SHA256] = true
		}
	}

	m.Statistics = Statistics{
		TotalFiles:     uint32(len(candidates)),
		UniqueFiles:    uint32(len(seen)),
		PartialFiles:   partial,
		TotalSizeBytes: totalSize,
		DiskSpaceUsed:  0,
	}
	return m
}

func methodName(p sig.Provenance) string {
	if p == sig.ProvenanceCarving {
		return "signature_carving"
	}
	return p.String()
}

// Write serializes m as indented JSON, matching spec.md §6's required
// field names and nesting exactly.
func Write(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("manifest: encoding: %w", err)
	}
	return nil
}

// Read parses a manifest.json document previously produced by Write,
// for the recover command's offline extraction path.
func Read(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: decoding: %w", err)
	}
	return &m, nil
}

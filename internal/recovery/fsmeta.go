package recovery

import (
	"bytes"

	"github.com/ostafen/digler/internal/fat"
	"github.com/ostafen/digler/internal/ntfs"
	"github.com/ostafen/digler/internal/sig"
)

// defaultNTFSSizeCeiling bounds how much of a deleted NTFS file's
// declared $DATA size metadata recovery will trust before capping it,
// guarding against a corrupted size field turning one record into a
// multi-gigabyte false candidate.
const defaultNTFSSizeCeiling = 50 * 1024 * 1024

// fatCandidates walks a FAT12/16/32 volume's directory tree and
// converts every deleted, non-directory, non-volume-label entry into a
// metadata-provenance Candidate, per spec.md §4.D/§4.I's metadata-only
// scan modes. The entry's cluster chain is never re-derived by walking
// the live FAT table (SequentialChain, not ClusterChain): a deletion
// leaves those links either zeroed or already reallocated to an
// unrelated live file, so the only trustworthy address is the
// directory entry's own first_cluster read sequentially for as many
// clusters as the declared size spans.
func fatCandidates(fs *fat.FileSystem, sourceID string) []*sig.Candidate {
	var out []*sig.Candidate

	fs.Walk(func(fullPath string, e fat.Entry) {
		if !e.Deleted || e.IsDir() || e.IsVolume() {
			return
		}
		if e.Size == 0 || e.FirstCluster < 2 {
			return
		}

		chain := fs.SequentialChain(e.FirstCluster, uint64(e.Size))
		if len(chain) == 0 {
			return
		}

		clusterSize := uint64(fs.BootSector().ClusterSize())
		maxBytes := uint64(len(chain)) * clusterSize
		size := uint64(e.Size)
		partial := size > maxBytes
		if partial {
			size = maxBytes
		}

		runs := make([]sig.ClusterRun, 0, len(fat.Runs(chain)))
		for _, r := range fat.Runs(chain) {
			runs = append(runs, sig.ClusterRun{
				FirstCluster: uint64(r.FirstCluster),
				Count:        uint64(r.Count),
			})
		}

		ext := extFromName(e.Name)
		cand := sig.NewRunsCandidate(sourceID, sig.ProvenanceFAT, runs, size, e.Name, ext)
		cand.Partial = partial
		if !e.ModTime.IsZero() {
			t := e.ModTime.Unix()
			cand.ModifyTime = &t
		}
		out = append(out, cand)
	})

	return out
}

// ntfsCandidates walks an NTFS volume's MFT and converts every deleted,
// non-directory record into a metadata-provenance Candidate: records
// with non-resident $DATA are addressed by cluster runs, while records
// whose $DATA is resident (fully inline in the MFT entry, never more
// than a few hundred bytes) are read directly out of the record bytes
// already in memory, per DESIGN.md's Open Question resolution.
func ntfsCandidates(fsys *ntfs.FileSystem, sourceID string, sizeCeiling uint64) []*sig.Candidate {
	if sizeCeiling == 0 {
		sizeCeiling = defaultNTFSSizeCeiling
	}

	var out []*sig.Candidate
	fsys.Walk(fsys.MaxRecords(), func(fullPath string, rec *ntfs.Record) {
		if !rec.Deleted || rec.IsDirectory {
			return
		}

		if rec.Resident != nil {
			if len(rec.Resident) == 0 || allZero(rec.Resident) {
				return
			}
			ext := extFromName(rec.Name)
			cand := sig.NewResidentCandidate(sourceID, sig.ProvenanceNTFS, rec.Resident, rec.Name, ext)
			out = append(out, cand)
			return
		}

		if rec.Size == 0 || len(rec.DataRuns) == 0 {
			return
		}

		size := rec.Size
		partial := size > sizeCeiling
		if partial {
			size = sizeCeiling
		}

		data, err := fsys.ReadData(&ntfs.Record{
			Size:     size,
			DataRuns: rec.DataRuns,
		})
		if err == nil && allZero(data) {
			return
		}

		runs := make([]sig.ClusterRun, 0, len(rec.DataRuns))
		for _, r := range rec.DataRuns {
			if r.Sparse {
				continue
			}
			runs = append(runs, sig.ClusterRun{
				FirstCluster: uint64(r.Offset),
				Count:        r.Length,
			})
		}
		if len(runs) == 0 {
			return
		}

		ext := extFromName(rec.Name)
		cand := sig.NewRunsCandidate(sourceID, sig.ProvenanceNTFS, runs, size, rec.Name, ext)
		cand.Partial = partial
		out = append(out, cand)
	})

	return out
}

func allZero(b []byte) bool {
	return len(b) > 0 && bytes.Count(b, []byte{0}) == len(b)
}

func extFromName(name string) string {
	for i := len(name) - 1; i >= 0 && i > len(name)-8; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return ""
}

// Package recovery implements the orchestrator and extractor (spec
// components I and J): partition discovery, mode dispatch across the
// metadata parsers and the carver, validation, hashing, deduplication,
// manifest assembly, and final extraction to disk.
package recovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/carve"
	"github.com/ostafen/digler/internal/dedup"
	"github.com/ostafen/digler/internal/fat"
	"github.com/ostafen/digler/internal/fingerprint"
	"github.com/ostafen/digler/internal/manifest"
	"github.com/ostafen/digler/internal/ntfs"
	"github.com/ostafen/digler/internal/sig"
	"github.com/ostafen/digler/internal/validate"
	"github.com/ostafen/digler/pkg/reader"
)

// offsetReadBuffer sizes the buffered seeker wrapping a carving
// candidate's SectionReader, cutting the number of ReadAt calls the
// validator's format-specific structural walk issues against the
// source for candidates it reads byte-by-byte.
const offsetReadBuffer = 64 * 1024

// Mode selects which of the four scan strategies spec.md §4.I describes.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeCarving Mode = "carving"
	ModeDeep    Mode = "deep"
	ModeQuick   Mode = "quick"
)

// Options configures a single Execute call.
type Options struct {
	Mode Mode

	// Extensions selects formats in two modes only: in ModeCarving it is
	// the set of signatures carved (empty means the full registry), and
	// in ModeNormal it filters metadata-recovered files (empty means
	// sig.ImportantExtensions()). ModeQuick always carves sig.QuickSet()
	// and ModeDeep always uses the full registry; both ignore it.
	Extensions []string

	// Partitions restricts the scan to these partition numbers (as
	// reported by DiscoverPartitions); empty means every partition.
	Partitions []int

	Validate validate.Options

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ProgressEvent is the single progress shape spec.md §6 defines for
// every mode, reported at chunk/record boundaries.
type ProgressEvent struct {
	Phase          string
	ProgressPct    float64
	SectorsVisited uint64
	TotalSectors   uint64
	FilesFound     int
	PerType        map[string]int
}

// Execute runs one full scan of src under opts, returning the finished
// manifest. ctx is checked between partitions and between carve chunks —
// never mid-read — so a cancelled scan still retains every candidate
// found so far, with ScanInfo.Incomplete set. The FAT and NTFS metadata
// walks do not check ctx: a metadata phase that has started runs to the
// end of its partition.
func Execute(ctx context.Context, src block.Source, opts Options, onProgress func(ProgressEvent)) (*manifest.Manifest, error) {
	start := time.Now()
	log := opts.logger()

	partitions, err := DiscoverPartitions(src)
	if err != nil {
		return nil, fmt.Errorf("recovery: discovering partitions: %w", err)
	}
	log.Info("discovered partitions", "count", len(partitions))

	var (
		candidates []*sig.Candidate
		readers    []candidateReader
		merr       *multierror.Error
		incomplete bool
		sectors    uint64
	)

	for _, p := range partitions {
		if !wantsPartition(opts.Partitions, p.Num) {
			continue
		}
		select {
		case <-ctx.Done():
			incomplete = true
		default:
		}
		if incomplete {
			break
		}

		part := block.NewSectionSource(src, fmt.Sprintf("%s#p%d", src.Identity(), p.Num), int64(p.Offset), p.Size)

		found, rdrs, visited, err := scanPartition(ctx, part, opts, onProgress)
		sectors += visited
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("partition %d: %w", p.Num, err))
		}
		if ctx.Err() != nil {
			incomplete = true
		}
		candidates = append(candidates, found...)
		readers = append(readers, rdrs...)
	}

	candidates, readers = hashAndValidate(candidates, readers, opts.Validate, log)

	kept, dropped := dedup.Dedup(candidates)
	log.Info("deduplicated candidates", "kept", len(kept), "dropped", dropped)

	end := time.Now()
	m := manifest.Build(string(opts.Mode), src.Identity(), start, end, sectors, incomplete, kept)
	return m, merr.ErrorOrNil()
}

// candidateReader pairs a Candidate with a function that re-opens its
// byte range, used by hashAndValidate and later by the extractor.
type candidateReader struct {
	cand *sig.Candidate
	open func() (io.Reader, error)
}

func scanPartition(ctx context.Context, part block.Source, opts Options, onProgress func(ProgressEvent)) ([]*sig.Candidate, []candidateReader, uint64, error) {
	switch opts.Mode {
	case ModeNormal:
		return scanMetadataOnly(part, opts, metadataExtensionFilter(opts.Extensions))
	case ModeCarving:
		cands, rdrs, err := sweepPartition(ctx, part, opts, carvingSignatures(opts.Extensions), carveMaxCandidateSize, "carve", 0, 100, onProgress)
		return cands, rdrs, 0, err
	case ModeQuick:
		cands, rdrs, err := sweepPartition(ctx, part, opts, sig.QuickSet(), carveMaxCandidateSize, "carve", 0, 100, onProgress)
		return cands, rdrs, 0, err
	case ModeDeep:
		return scanDeep(ctx, part, opts, onProgress)
	default:
		return nil, nil, 0, fmt.Errorf("recovery: unknown mode %q", opts.Mode)
	}
}

// carveMaxCandidateSize caps carved candidates in ModeQuick and
// ModeCarving; ModeDeep passes 0, leaving only each signature's MaxSize.
const carveMaxCandidateSize = 20 * 1024 * 1024

func metadataExtensionFilter(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = sig.ImportantExtensions()
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return set
}

func carvingSignatures(exts []string) []sig.Signature {
	if len(exts) == 0 {
		return sig.All()
	}
	sigs, err := sig.ByExt(exts...)
	if err != nil {
		return sig.All()
	}
	return sigs
}

// scanMetadataOnly runs the FAT/NTFS parsers over part without carving,
// per ModeNormal's "metadata only, no sweep" semantics.
func scanMetadataOnly(part block.Source, opts Options, allow map[string]bool) ([]*sig.Candidate, []candidateReader, uint64, error) {
	var cands []*sig.Candidate
	var readers []candidateReader

	if fsys, err := fat.Open(part); err == nil {
		boot := fsys.BootSector()
		for _, c := range fatCandidates(fsys, part.Identity()) {
			if !allow[c.Ext] {
				continue
			}
			cands = append(cands, c)
			readers = append(readers, candidateReader{cand: c, open: openFATRuns(part, boot, c)})
		}
	}

	if fsys, err := ntfs.Open(part); err == nil {
		for _, c := range ntfsCandidates(fsys, part.Identity(), 0) {
			if !allow[c.Ext] {
				continue
			}
			cands = append(cands, c)
			open := openNTFSRuns(part, fsys, c)
			if c.Resident != nil {
				open = openResident(c)
			}
			readers = append(readers, candidateReader{cand: c, open: open})
		}
	}

	return cands, readers, 0, nil
}

// scanDeep runs the metadata phase (0-40%), then a full-registry carve
// (40-90%). The dedup step that follows in Execute reports no progress
// event, so progress for a deep scan ends at 90%.
func scanDeep(ctx context.Context, part block.Source, opts Options, onProgress func(ProgressEvent)) ([]*sig.Candidate, []candidateReader, uint64, error) {
	metaCands, metaReaders, _, _ := scanMetadataOnly(part, opts, metadataExtensionFilter(nil))
	if onProgress != nil {
		onProgress(ProgressEvent{Phase: "metadata", ProgressPct: 40})
	}

	carveCands, carveReaders, err := sweepPartition(ctx, part, opts, sig.All(), 0, "carve", 40, 90, onProgress)

	return append(metaCands, carveCands...), append(metaReaders, carveReaders...), 0, err
}

func sweepPartition(ctx context.Context, part block.Source, opts Options, sigs []sig.Signature, maxCandidateSize uint64, phase string, pctStart, pctEnd float64, onProgress func(ProgressEvent)) ([]*sig.Candidate, []candidateReader, error) {
	var cands []*sig.Candidate
	var readers []candidateReader

	total := part.Length() / uint64(max32(part.SectorSize(), 1))
	chunk := chunkSizeForMemory(part.Length())

	err := carve.Sweep(ctx, part, carve.Options{
		Signatures:       sigs,
		ChunkSize:        chunk,
		MaxCandidateSize: maxCandidateSize,
	}, func(c *sig.Candidate) {
		cands = append(cands, c)
		readers = append(readers, candidateReader{cand: c, open: openOffset(part, c)})
	}, func(p carve.Progress) {
		if onProgress == nil {
			return
		}
		pct := pctStart
		if total > 0 {
			pct = pctStart + (pctEnd-pctStart)*float64(p.SectorsVisited)/float64(total)
		}
		onProgress(ProgressEvent{
			Phase:          phase,
			ProgressPct:    pct,
			SectorsVisited: p.SectorsVisited,
			TotalSectors:   total,
			FilesFound:     p.FilesFound,
			PerType:        p.PerType,
		})
	})
	return cands, readers, err
}

func openOffset(src block.Source, c *sig.Candidate) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		if c.Offset == nil {
			return nil, fmt.Errorf("recovery: candidate %s has no offset", c.Name)
		}
		section := io.NewSectionReader(src, int64(*c.Offset), int64(c.Size))
		return reader.NewBufferedReadSeeker(section, offsetReadBuffer), nil
	}
}

// openResident returns c's inline $DATA bytes directly, with no re-read
// of the source at all: the data was already captured off the MFT
// record when the candidate was built.
func openResident(c *sig.Candidate) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		return bytes.NewReader(c.Resident), nil
	}
}

func openFATRuns(src block.Source, boot *fat.BootSector, c *sig.Candidate) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		clusterBytes := int(boot.ClusterSize())
		data, err := readClusterRuns(src, c.Runs, c.Size, clusterBytes, func(cluster uint64) int64 {
			return int64(boot.ClusterToSector(uint32(cluster))) * int64(boot.SectorSize)
		})
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

func openNTFSRuns(src block.Source, fsys *ntfs.FileSystem, c *sig.Candidate) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		clusterBytes := fsys.BootSector().ClusterSize()
		data, err := readClusterRuns(src, c.Runs, c.Size, clusterBytes, func(cluster uint64) int64 {
			return int64(cluster) * int64(clusterBytes)
		})
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// readClusterRuns reads every run's bytes via toOffset (geometry specific
// to the owning filesystem) and concatenates them, trimming the final
// run to size, mirroring fat.FileSystem.ReadChain's trim behavior.
// clusterBytes is the byte size of one cluster unit as addressed by
// toOffset (FirstCluster/Count are cluster counts, not bytes).
func readClusterRuns(src block.Source, runs []sig.ClusterRun, size uint64, clusterBytes int, toOffset func(cluster uint64) int64) ([]byte, error) {
	out := make([]byte, 0, size)
	for _, r := range runs {
		if uint64(len(out)) >= size {
			break
		}
		off := toOffset(r.FirstCluster)
		runLen := r.Count * uint64(clusterBytes)
		buf := make([]byte, runLen)
		if _, err := block.ReadFull(src, buf, off); err != nil {
			return out, err
		}
		out = append(out, buf...)
	}
	if uint64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

// hashAndValidate re-reads every candidate's declared range once to
// compute its score (component G) and its MD5/SHA256 digest (component
// C), dropping whatever the validator rejects.
func hashAndValidate(cands []*sig.Candidate, readers []candidateReader, opts validate.Options, log *slog.Logger) ([]*sig.Candidate, []candidateReader) {
	keptCands := cands[:0]
	keptReaders := readers[:0]

	for i, c := range cands {
		r, err := readers[i].open()
		if err != nil {
			log.Warn("candidate unreadable, dropping", "name", c.Name, "err", err)
			continue
		}

		var buf bytes.Buffer
		tee := io.TeeReader(r, &buf)
		ok, err := validate.ApplyTo(c, tee, opts)
		if err != nil {
			log.Warn("validation error, dropping", "name", c.Name, "err", err)
			continue
		}
		if !ok {
			continue
		}

		digest, _, err := fingerprint.Sum(&buf, 0)
		if err != nil {
			log.Warn("hashing error, dropping", "name", c.Name, "err", err)
			continue
		}
		c.MD5 = digest.MD5
		c.SHA256 = digest.SHA256

		keptCands = append(keptCands, c)
		keptReaders = append(keptReaders, readers[i])
	}
	return keptCands, keptReaders
}

func wantsPartition(selected []int, num int) bool {
	if len(selected) == 0 {
		return true
	}
	for _, n := range selected {
		if n == num {
			return true
		}
	}
	return false
}

// chunkSizeForMemory sizes the carver's per-worker read window at
// roughly 1% of available memory, clamped to [1MiB, 10MiB] per spec.md
// §4.I, and additionally capped at 2MiB when the source itself is under
// 1GiB so a tiny image never gets an oversized single chunk.
func chunkSizeForMemory(sourceSize uint64) int {
	const (
		minChunk = 1 << 20
		maxChunk = 10 << 20
		smallSourceCap = 2 << 20
		smallSourceThreshold = 1 << 30
	)

	chunk := minChunk
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		available := uint64(info.Freeram) * uint64(info.Unit)
		onePercent := int(available / 100)
		if onePercent > chunk {
			chunk = onePercent
		}
	}
	if chunk > maxChunk {
		chunk = maxChunk
	}
	if chunk < minChunk {
		chunk = minChunk
	}
	if sourceSize < smallSourceThreshold && chunk > smallSourceCap {
		chunk = smallSourceCap
	}
	return chunk
}

func max32(a uint32, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Package carve implements the signature-based carver (spec component
// F): a chunked sweep over a block.Source that locates candidate file
// headers via the signature registry and sizes each hit by replaying
// the same per-format ScanFile walk the validator later re-checks.
//
// Adapted from the teacher's internal/format.Scanner/ChunkBuffer, but
// restructured from a single-goroutine iterator into the fan-out/fan-in
// worker pool spec.md §5 requires: a pool of min(NumCPU, 8) workers each
// owns a non-overlapping chunk (padded by |header|-1 bytes so a header
// spanning a chunk boundary is still found exactly once), emitting
// Candidates into one result channel drained by the caller.
package carve

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/sig"
)

// Options configures a single Sweep.
type Options struct {
	Signatures []sig.Signature

	// ChunkSize is the per-worker read window, in bytes. Defaults to 4MiB.
	ChunkSize int

	// MaxCandidateSize is the hard per-file byte budget (the mode's
	// carving cap, per SPEC_FULL.md §9); 0 means no mode-level cap, so
	// only each signature's own MaxSize applies (deep mode).
	MaxCandidateSize uint64

	// MinSize rejects hits below this size regardless of the
	// signature's own MinSize.
	MinSize uint64

	// Workers bounds the worker pool size; 0 selects min(NumCPU, 8).
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (o Options) chunkSize() int64 {
	if o.ChunkSize > 0 {
		return int64(o.ChunkSize)
	}
	return 4 << 20
}

// Progress is a cumulative snapshot flushed at chunk boundaries, never
// from inside the innermost scan loop, per spec.md §4.F point 4.
type Progress struct {
	SectorsVisited uint64
	FilesFound     int
	PerType        map[string]int
}

// Sweep scans src for header hits against opts.Signatures, calling emit
// once per accepted Candidate and progress after every completed chunk.
// ctx is checked between chunks, never mid-chunk, matching spec.md §5.
//
// Skipping policy (spec.md §4.F step 3, a MUST-document choice): after a
// rejected header hit this implementation advances by 1 byte, not by
// |header|, preserving recall of overlapping or truncated signatures at
// the cost of rescanning a few bytes. See DESIGN.md.
func Sweep(ctx context.Context, src block.Source, opts Options, emit func(*sig.Candidate), progress func(Progress)) error {
	if len(opts.Signatures) == 0 {
		return fmt.Errorf("carve: no signatures selected")
	}

	registry := sig.BuildRegistry(opts.Signatures...)
	pad := maxHeaderLen(opts.Signatures) - 1
	if pad < 0 {
		pad = 0
	}

	chunkSize := opts.chunkSize()
	total := int64(src.Length())
	if total <= 0 {
		return nil
	}
	numChunks := int((total + chunkSize - 1) / chunkSize)

	jobs := make(chan int, numChunks)
	for i := 0; i < numChunks; i++ {
		jobs <- i
	}
	close(jobs)

	results := make(chan *sig.Candidate, 64)
	stats := make(chan chunkStat, numChunks)
	workerErr := make(chan error, opts.workers())

	var wg sync.WaitGroup
	for w := 0; w < opts.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				chunkStart := int64(idx) * chunkSize
				st, err := scanChunk(src, registry, chunkStart, chunkSize, pad, opts, results)
				if err != nil {
					select {
					case workerErr <- err:
					default:
					}
					continue
				}
				stats <- st
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
		close(stats)
	}()

	acc := Progress{PerType: map[string]int{}}
	for results != nil || stats != nil {
		select {
		case cand, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			emit(cand)
		case st, ok := <-stats:
			if !ok {
				stats = nil
				continue
			}
			acc.SectorsVisited += st.sectors
			acc.FilesFound += st.found
			for ext, n := range st.perType {
				acc.PerType[ext] += n
			}
			if progress != nil {
				progress(acc)
			}
		}
	}

	select {
	case err := <-workerErr:
		return err
	default:
	}
	return ctx.Err()
}

func maxHeaderLen(sigs []sig.Signature) int {
	max := 0
	for _, s := range sigs {
		for _, m := range s.Signatures {
			if len(m) > max {
				max = len(m)
			}
		}
	}
	return max
}

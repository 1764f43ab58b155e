package carve

import (
	"bufio"
	"io"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/sig"
)

// chunkStat is one worker's contribution to the cumulative Progress,
// reported once per completed chunk rather than per header hit.
type chunkStat struct {
	sectors uint64
	found   int
	perType map[string]int
}

// scanChunk scans [chunkStart, chunkStart+chunkLen) for header hits,
// reading pad extra bytes past the chunk's own span so a magic header
// that straddles the boundary is still seen whole by the registry
// search (ScanFile itself reads from src, not from this buffer); only hits
// starting inside the chunk's own span are accepted, so a header
// spanning two chunks is attributed to exactly one of them.
func scanChunk(src block.Source, registry *sig.Registry, chunkStart, chunkLen int64, pad int, opts Options, results chan<- *sig.Candidate) (chunkStat, error) {
	total := int64(src.Length())
	if chunkStart >= total {
		return chunkStat{}, nil
	}

	ownLen := chunkLen
	if chunkStart+ownLen > total {
		ownLen = total - chunkStart
	}

	readLen := ownLen + int64(pad)
	if chunkStart+readLen > total {
		readLen = total - chunkStart
	}

	buf := make([]byte, readLen)
	n, err := block.ReadFull(src, buf, chunkStart)
	if err != nil && err != io.EOF {
		return chunkStat{}, err
	}
	buf = buf[:n]

	st := chunkStat{perType: map[string]int{}}

	for i := int64(0); i < ownLen && i < int64(len(buf)); {
		var accepted *sig.Candidate

		registry.Search(buf[i:], func(s sig.Signature) bool {
			cand := tryHeader(src, s, chunkStart+i, opts)
			if cand != nil {
				accepted = cand
				return true
			}
			return false
		})

		if accepted != nil {
			results <- accepted
			st.found++
			st.perType[accepted.Ext]++
			i += int64(accepted.Size)
		} else {
			i++
		}
	}

	sectorSize := int64(src.SectorSize())
	if sectorSize > 0 {
		st.sectors = uint64(ownLen / sectorSize)
	}
	return st, nil
}

// tryHeader replays the signature's ScanFile walk starting at offset to
// size the candidate, then enforces the signature's own bounds plus any
// mode-level overrides from opts, returning nil when the hit should be
// rejected (spec.md §4.F step 2c/3).
func tryHeader(src block.Source, s sig.Signature, offset int64, opts Options) *sig.Candidate {
	remaining := int64(src.Length()) - offset
	if remaining <= 0 {
		return nil
	}

	sr := io.NewSectionReader(src, offset, remaining)
	reader := sig.NewReader(bufio.NewReader(sr))

	res, err := s.ScanFile(reader)
	if err != nil || res == nil || res.Size == 0 {
		return nil
	}

	minSize := s.MinSize
	if opts.MinSize > minSize {
		minSize = opts.MinSize
	}
	if res.Size < minSize {
		return nil
	}

	maxSize := s.MaxSize
	if opts.MaxCandidateSize > 0 && (maxSize == 0 || opts.MaxCandidateSize < maxSize) {
		maxSize = opts.MaxCandidateSize
	}

	size := res.Size
	partial := res.Partial
	if maxSize > 0 && size > maxSize {
		if !partial {
			return nil
		}
		size = maxSize
	}
	if size > uint64(remaining) {
		return nil
	}

	ext := s.Ext
	if res.Ext != "" {
		ext = res.Ext
	}

	cand := sig.NewOffsetCandidate(src.Identity(), uint64(offset), size, ext)
	if res.Name != "" {
		cand.Name = res.Name
	}
	cand.Partial = partial
	return cand
}

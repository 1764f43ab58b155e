package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler/internal/sig"
)

func offsetCandidate(sha string, prov sig.Provenance, score int, partial bool, offset uint64) *sig.Candidate {
	off := offset
	return &sig.Candidate{
		SHA256:     sha,
		Provenance: prov,
		Score:      score,
		Partial:    partial,
		Offset:     &off,
	}
}

func TestDedup_MetadataWinsOverCarving(t *testing.T) {
	meta := offsetCandidate("abc", sig.ProvenanceFAT, 70, false, 1000)
	carved := offsetCandidate("abc", sig.ProvenanceCarving, 95, false, 500)

	kept, dropped := Dedup([]*sig.Candidate{carved, meta})
	require.Equal(t, 1, dropped)
	require.Len(t, kept, 1)
	require.Same(t, meta, kept[0])
}

func TestDedup_HigherScoreWinsWithinSameProvenanceTier(t *testing.T) {
	low := offsetCandidate("abc", sig.ProvenanceCarving, 60, false, 0)
	high := offsetCandidate("abc", sig.ProvenanceCarving, 95, false, 0)

	kept, dropped := Dedup([]*sig.Candidate{low, high})
	require.Equal(t, 1, dropped)
	require.Same(t, high, kept[0])
}

func TestDedup_NonPartialWinsOverPartial(t *testing.T) {
	partial := offsetCandidate("abc", sig.ProvenanceCarving, 80, true, 0)
	complete := offsetCandidate("abc", sig.ProvenanceCarving, 80, false, 0)

	kept, _ := Dedup([]*sig.Candidate{partial, complete})
	require.Same(t, complete, kept[0])
}

func TestDedup_EarliestOffsetWinsOnFullTie(t *testing.T) {
	later := offsetCandidate("abc", sig.ProvenanceCarving, 80, false, 2000)
	earlier := offsetCandidate("abc", sig.ProvenanceCarving, 80, false, 100)

	kept, _ := Dedup([]*sig.Candidate{later, earlier})
	require.Same(t, earlier, kept[0])
}

func TestDedup_DistinctDigestsAllKept(t *testing.T) {
	a := offsetCandidate("aaa", sig.ProvenanceCarving, 80, false, 0)
	b := offsetCandidate("bbb", sig.ProvenanceCarving, 80, false, 0)

	kept, dropped := Dedup([]*sig.Candidate{a, b})
	require.Equal(t, 0, dropped)
	require.Len(t, kept, 2)
}

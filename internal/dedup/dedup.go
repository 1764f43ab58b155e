// Package dedup implements the deduplicator (spec component H). No
// teacher equivalent exists (digler does not deduplicate across
// phases); the package is new but kept in the teacher's plain
// data-oriented style — a single function operating on slices, no
// interfaces where a function suffices, matching internal/format's
// layout.
package dedup

import "github.com/ostafen/digler/internal/sig"

// Dedup collapses candidates sharing a SHA-256 digest down to one
// winner per digest, using the four-level priority order from
// spec.md §4.H: metadata provenance over carving, higher score, a
// non-partial candidate over a partial one, and finally earliest
// offset. Candidates with no digest (not yet hashed) are never
// collapsed against each other.
func Dedup(candidates []*sig.Candidate) (kept []*sig.Candidate, dropped int) {
	winners := make(map[string]*sig.Candidate, len(candidates))
	var order []string
	var nokey []*sig.Candidate

	for _, c := range candidates {
		if c.SHA256 == "" {
			nokey = append(nokey, c)
			continue
		}
		cur, ok := winners[c.SHA256]
		if !ok {
			winners[c.SHA256] = c
			order = append(order, c.SHA256)
			continue
		}
		if less(cur, c) {
			winners[c.SHA256] = c
		}
		dropped++
	}

	kept = make([]*sig.Candidate, 0, len(order)+len(nokey))
	for _, key := range order {
		kept = append(kept, winners[key])
	}
	kept = append(kept, nokey...)
	return kept, dropped
}

// less reports whether b should win over a, i.e. b outranks a under the
// spec.md §4.H priority order.
func less(a, b *sig.Candidate) bool {
	aMeta, bMeta := a.Provenance != sig.ProvenanceCarving, b.Provenance != sig.ProvenanceCarving
	if aMeta != bMeta {
		return bMeta
	}
	if a.Score != b.Score {
		return b.Score > a.Score
	}
	if a.Partial != b.Partial {
		return !b.Partial
	}
	return b.PositionKey() < a.PositionKey()
}

// Package sig implements the signature registry (spec component B):
// the static table of known file-format headers/footers used by the
// carver and validator, adapted from the teacher's internal/format
// registry but separated from the scanning loop itself.
package sig

import "github.com/ostafen/digler/pkg/table"

// Importance marks a format as commonly wanted: ImportantExtensions
// returns the formats rated ImportanceHigh, which normal mode keeps by
// default. It plays no part in ranking header matches.
type Importance int

const (
	ImportanceNormal Importance = iota
	ImportanceHigh
)

// Signature describes one recoverable file format: its magic header(s),
// an optional footer marker used by footer-bounded formats, and size
// bounds used to reject implausible carve results before they ever
// reach the validator.
type Signature struct {
	Ext         string
	Description string
	Signatures  [][]byte
	Footer      []byte
	Importance  Importance
	MinSize     uint64
	MaxSize     uint64

	// ScanFile performs the structural walk used during carving to
	// determine a candidate's size. It is also reused by the validator
	// (package internal/validate) to re-check an already-sized
	// candidate.
	ScanFile func(r *Reader) (*ScanResult, error)
}

// ScanResult is what a per-format scanner reports about a candidate it
// has structurally walked starting at the current reader position.
type ScanResult struct {
	Name    string
	Ext     string
	Size    uint64
	Partial bool
}

type headerSet []Signature

// Registry is the hash-prefix index over every registered Signature,
// reused unchanged from the teacher's pkg/table.PrefixTable: a 65536
// slot hashed-prefix table that lets the carver test every active
// signature against a byte position in roughly constant time.
type Registry struct {
	table *table.PrefixTable[headerSet]
}

func NewRegistry() *Registry {
	return &Registry{table: table.New[headerSet]()}
}

func (r *Registry) Add(s Signature) {
	for _, magic := range s.Signatures {
		existing, _ := r.table.Get(magic)
		r.table.Insert(magic, append(existing, s))
	}
}

// Search walks every signature whose magic bytes are a prefix of data,
// invoking handle for each until it returns true.
func (r *Registry) Search(data []byte, handle func(Signature) bool) {
	if r.table.Size() == 0 {
		return
	}
	r.table.Walk(data, func(set headerSet) bool {
		for _, s := range set {
			if handle(s) {
				return true
			}
		}
		return false
	})
}

func (r *Registry) Count() int { return r.table.Size() }

// BuildRegistry constructs a Registry populated with the given
// signatures, mirroring the teacher's BuildFileRegistry helper.
func BuildRegistry(sigs ...Signature) *Registry {
	r := NewRegistry()
	for _, s := range sigs {
		r.Add(s)
	}
	return r
}

// All returns the full built-in signature set recognized by this
// build, unfiltered.
func All() []Signature {
	return allSignatures
}

// ByExt returns the subset of built-in signatures matching the given
// extensions, preserving input order. Used for the scan command's --ext
// flag in carving mode.
func ByExt(exts ...string) ([]Signature, error) {
	if len(exts) == 0 {
		return allSignatures, nil
	}
	byExt := make(map[string]Signature, len(allSignatures))
	for _, s := range allSignatures {
		byExt[s.Ext] = s
	}
	out := make([]Signature, 0, len(exts))
	for _, e := range exts {
		s, ok := byExt[e]
		if !ok {
			return nil, &UnknownExtensionError{Ext: e}
		}
		out = append(out, s)
	}
	return out, nil
}

// ImportantExtensions returns the Ext tags of every built-in signature
// flagged ImportanceHigh, used by the Orchestrator's normal-mode default
// filter (spec.md §4.I: "Filter output by 'important' extensions if no
// explicit filter is given").
func ImportantExtensions() []string {
	var out []string
	for _, s := range allSignatures {
		if s.Importance == ImportanceHigh {
			out = append(out, s.Ext)
		}
	}
	return out
}

// QuickSet returns the reduced, common-format subset used by quick mode
// (spec.md §4.I: "a small set of common types with a reduced max-size
// ceiling").
func QuickSet() []Signature {
	sigs, _ := ByExt("jpg", "png", "pdf", "zip")
	return sigs
}

type UnknownExtensionError struct{ Ext string }

func (e *UnknownExtensionError) Error() string {
	return "sig: unknown file extension: " + e.Ext
}

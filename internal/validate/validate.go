// Package validate implements the validator/scorer (spec component G):
// structural re-checks and a 0-100 confidence score for a Candidate
// whose byte range is already known, whether from metadata (FAT/NTFS)
// or from the carver.
//
// The per-type structural walk is reused directly from internal/sig's
// Signature.ScanFile — the same decoder the carver uses to discover a
// candidate's size is replayed here to confirm it, exactly as
// SPEC_FULL.md describes: "retargeted to validate and score... rather
// than to discover its size."
package validate

import (
	"bufio"
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/ostafen/digler/internal/sig"
)

// Options toggles the optional passes from spec.md §4.G.
type Options struct {
	// DeepValidate decodes image candidates via the standard library's
	// image package to confirm renderability; on by default.
	DeepValidate bool

	// MIMESniff checks the byte range's sniffed MIME type against the
	// expected one for the declared format.
	MIMESniff bool
}

func DefaultOptions() Options {
	return Options{DeepValidate: true, MIMESniff: true}
}

// Result is the outcome of validating one candidate's declared byte
// range: either a score/partial verdict, or Rejected with a reason,
// per spec.md §4.G point 5.
type Result struct {
	Rejected bool
	Reason   string

	Partial  bool
	Score    int
	Category string
}

// Check re-applies the format's structural walk against data (exactly
// size bytes, the candidate's declared range), then layers deep image
// decoding and MIME sniffing on top, producing the score and partial
// flag spec.md §4.G describes. format is the Signature's Ext tag.
func Check(format string, size uint64, data io.Reader, opts Options) (*Result, error) {
	sigs, err := sig.ByExt(format)
	if err != nil {
		return nil, err
	}
	s := sigs[0]

	buf := make([]byte, size)
	n, err := io.ReadFull(data, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	buf = buf[:n]

	if uint64(len(buf)) < s.MinSize {
		return &Result{Rejected: true, Reason: "below minimum size"}, nil
	}
	if allZero(buf) {
		return &Result{Rejected: true, Reason: "all-zero body"}, nil
	}

	res, scanErr := s.ScanFile(sig.NewReader(bufio.NewReader(bytes.NewReader(buf))))

	score := 100
	partial := scanErr != nil || res == nil || res.Partial || res.Size < uint64(len(buf))
	if partial {
		score -= 25
	}
	// MP3 has no end marker, so its size is never structurally confirmed.
	if format == "mp3" && score > 70 {
		score = 70
	}

	if opts.DeepValidate && isImageFormat(format) {
		if _, _, err := image.Decode(bytes.NewReader(buf)); err != nil {
			score -= 10
		} else {
			score += 5
		}
	}

	if opts.MIMESniff {
		mime := http.DetectContentType(buf)
		if matchesExpectedMIME(format, mime) {
			score += 3
		}
	}

	score = clampScore(score)
	if score == 0 && !partial {
		return &Result{Rejected: true, Reason: "score zero"}, nil
	}

	return &Result{
		Partial:  partial,
		Score:    score,
		Category: category(score),
	}, nil
}

// ApplyTo runs Check against cand's already-declared range and writes
// the verdict back onto cand, reporting whether the candidate survives
// (spec.md: "Rejected candidates never appear in the manifest").
func ApplyTo(cand *sig.Candidate, data io.Reader, opts Options) (bool, error) {
	result, err := Check(cand.Ext, cand.Size, data, opts)
	if err != nil {
		return false, err
	}
	if result.Rejected {
		return false, nil
	}
	cand.Score = result.Score
	cand.Partial = result.Partial
	return true, nil
}

func allZero(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// category buckets a score per spec.md §4.G.
func category(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 70:
		return "Good"
	case score >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}

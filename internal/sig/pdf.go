package sig

import (
	"bytes"
	"fmt"
)

var pdfSignature = Signature{
	Ext:         "pdf",
	Description: "Portable Document Format",
	Signatures:  [][]byte{pdfHeaderMagic},
	Footer:      pdfEOFMarker,
	MinSize:     32,
	Importance:  ImportanceHigh,
	ScanFile:    scanPDF,
}

var (
	pdfHeaderMagic = []byte("%PDF-")
	pdfEOFMarker   = []byte("%%EOF")

	pdfMaxScan = 16 * 1024 * 1024
)

// scanPDF locates the header and the LAST occurrence of "%%EOF" within
// pdfMaxScan bytes, adapted directly from the teacher's ScanPDF.
func scanPDF(r *Reader) (*ScanResult, error) {
	var hdr [5]byte
	if _, err := r.Read(hdr[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(hdr[:], pdfHeaderMagic) {
		return nil, fmt.Errorf("pdf: missing header")
	}

	var size uint64
	for {
		n := r.BytesRead()

		found, err := SeekToMarker(r, pdfEOFMarker, pdfMaxScan)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}

		if _, err := r.Discard(len(pdfEOFMarker)); err != nil {
			return nil, err
		}

		size = r.BytesRead() - n + uint64(len(pdfEOFMarker))
	}

	if size == 0 {
		return nil, fmt.Errorf("pdf: no %%%%EOF marker found")
	}
	return &ScanResult{Size: size}, nil
}

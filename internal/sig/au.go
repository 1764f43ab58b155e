package sig

import (
	"encoding/binary"
	"fmt"
	"io"
)

var auSignature = Signature{
	Ext:         "au",
	Description: "Sun/NeXT audio",
	Signatures:  [][]byte{{0x2E, 0x73, 0x6E, 0x64}},
	MinSize:     auMinHeaderSize,
	ScanFile:    scanAU,
}

const (
	auMagic            uint32 = 0x2e736e64
	auMinHeaderSize           = 24
	auDataSizeUnknown  uint32 = 0xFFFFFFFF
)

// scanAU reads the fixed Sun audio header, skips any header padding
// beyond the minimum size, then consumes the declared data size (or
// stops at the header boundary if the size is marked unknown),
// adapted from the teacher's ScanSunAudio.
func scanAU(r *Reader) (*ScanResult, error) {
	var hdr [auMinHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("au: short header: %w", err)
	}

	if binary.BigEndian.Uint32(hdr[0:4]) != auMagic {
		return nil, fmt.Errorf("au: bad magic")
	}

	headerSize := binary.BigEndian.Uint32(hdr[4:8])
	if headerSize < auMinHeaderSize {
		return nil, fmt.Errorf("au: invalid header size %d", headerSize)
	}
	dataSize := binary.BigEndian.Uint32(hdr[8:12])

	bytesRead := uint64(auMinHeaderSize)
	if headerSize > auMinHeaderSize {
		skipped, err := r.Discard(int(headerSize - auMinHeaderSize))
		if err != nil {
			return &ScanResult{Size: bytesRead + uint64(skipped), Partial: true}, nil
		}
		bytesRead += uint64(skipped)
	}

	if dataSize == auDataSizeUnknown {
		return &ScanResult{Size: bytesRead, Partial: true}, nil
	}

	total := uint64(headerSize) + uint64(dataSize)
	remaining := int64(total - bytesRead)
	if remaining > 0 {
		skipped, err := io.CopyN(io.Discard, r, remaining)
		if err != nil {
			return &ScanResult{Size: bytesRead + uint64(skipped), Partial: true}, nil
		}
		bytesRead += uint64(skipped)
	}
	return &ScanResult{Size: total}, nil
}

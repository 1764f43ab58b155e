package sig

import (
	"encoding/binary"
	"fmt"
)

var tiffSignature = Signature{
	Ext:         "tif",
	Description: "Tagged Image File Format",
	Signatures:  [][]byte{[]byte("\x49\x49\x2A\x00"), []byte("\x4D\x4D\x00\x2A")},
	MinSize:     8,
	ScanFile:    scanTIFF,
}

// scanTIFF walks the IFD chain to find the end of the directory
// structure, adapted from the teacher's ScanTIFF. It does not follow
// per-tag value offsets, so the reported size covers the directory
// chain only, not out-of-line tag data beyond it.
func scanTIFF(r *Reader) (*ScanResult, error) {
	const headerSize = 8

	header, err := r.Peek(headerSize)
	if err != nil {
		return nil, fmt.Errorf("tiff: short header: %w", err)
	}

	var byteOrder binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: invalid endian marker")
	}

	if byteOrder.Uint16(header[2:4]) != 42 {
		return nil, fmt.Errorf("tiff: bad magic number")
	}

	firstIFD := byteOrder.Uint32(header[4:8])
	if firstIFD < headerSize {
		return nil, fmt.Errorf("tiff: invalid first IFD offset")
	}

	if _, err := r.Discard(headerSize); err != nil {
		return nil, err
	}
	offset := uint64(headerSize)

	if skip := int(firstIFD - headerSize); skip > 0 {
		n, err := r.Discard(skip)
		if err != nil || n != skip {
			return nil, fmt.Errorf("tiff: failed to reach first IFD")
		}
		offset += uint64(n)
	}

	for {
		var buf [4]byte
		if _, err := r.Read(buf[:2]); err != nil {
			return nil, err
		}
		entryCount := byteOrder.Uint16(buf[:])
		offset += 2

		entriesSize := int(entryCount) * 12
		if _, err := r.Discard(entriesSize); err != nil {
			return nil, err
		}
		offset += uint64(entriesSize)

		if _, err := r.Read(buf[:]); err != nil {
			return nil, err
		}
		next := byteOrder.Uint32(buf[:])
		offset += 4

		if next == 0 {
			break
		}

		skip := int(next) - int(offset)
		if skip < 0 {
			return nil, fmt.Errorf("tiff: backward IFD pointer")
		}
		if skip > 0 {
			if _, err := r.Discard(skip); err != nil {
				return nil, err
			}
			offset += uint64(skip)
		}
	}

	return &ScanResult{Ext: "tif", Size: offset}, nil
}

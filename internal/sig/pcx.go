package sig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pcxSignature = Signature{
	Ext:         "pcx",
	Description: "ZSoft Picture Exchange",
	Signatures:  [][]byte{{0x0A}},
	MinSize:     128,
	ScanFile:    scanPCX,
}

type pcxHeader struct {
	Manufacturer byte
	Version      byte
	Encoding     byte
	BitsPerPixel byte
	XMin, YMin   uint16
	XMax, YMax   uint16
	HRes, VRes   uint16
	ColorMap     [48]byte
	Reserved     byte
	NumPlanes    byte
	BytesPerLine uint16
	PaletteType  uint16
	HScreenSize  uint16
	VScreenSize  uint16
	Filler       [54]byte
}

// pcxReadRLEScanline reads one RLE-compressed scanline for a single
// plane, returning the number of bytes consumed.
func pcxReadRLEScanline(r *Reader, expectedUncompressedBytes uint16) (int, error) {
	bytesRead := 0
	decodedBytes := 0

	for decodedBytes < int(expectedUncompressedBytes) {
		b, err := r.ReadByte()
		if err != nil {
			return bytesRead, fmt.Errorf("pcx: unexpected EOF in RLE data: %w", err)
		}
		bytesRead++

		if b&0xC0 == 0xC0 {
			runLength := int(b & 0x3F)
			if runLength == 0 {
				return bytesRead, errors.New("pcx: zero-length RLE run")
			}
			if _, err := r.ReadByte(); err != nil {
				return bytesRead, fmt.Errorf("pcx: unexpected EOF in RLE run byte: %w", err)
			}
			bytesRead++
			decodedBytes += runLength
		} else {
			decodedBytes++
		}
	}
	return bytesRead, nil
}

// scanPCX parses the 128-byte ZSoft header, then either skips the
// declared uncompressed image size or walks each RLE scanline to
// determine the compressed size, adapted from the teacher's ScanPCX.
func scanPCX(r *Reader) (*ScanResult, error) {
	headerBuf := make([]byte, 128)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, fmt.Errorf("pcx: short header: %w", err)
	}

	var hdr pcxHeader
	if err := binary.Read(bytes.NewReader(headerBuf), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}

	if hdr.Manufacturer != 0x0A {
		return nil, fmt.Errorf("pcx: bad manufacturer id")
	}
	if hdr.Encoding != 0 && hdr.Encoding != 1 {
		return nil, fmt.Errorf("pcx: unsupported encoding %d", hdr.Encoding)
	}
	switch hdr.Version {
	case 0, 2, 3, 4, 5:
	default:
		return nil, fmt.Errorf("pcx: unsupported version %d", hdr.Version)
	}
	switch hdr.BitsPerPixel {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("pcx: unsupported bits per pixel %d", hdr.BitsPerPixel)
	}
	if hdr.NumPlanes == 0 || hdr.NumPlanes > 4 {
		return nil, fmt.Errorf("pcx: unsupported plane count %d", hdr.NumPlanes)
	}

	if hdr.XMax < hdr.XMin || hdr.YMax < hdr.YMin {
		return nil, errors.New("pcx: inverted bounding box")
	}
	width := uint32(hdr.XMax) - uint32(hdr.XMin) + 1
	height := uint32(hdr.YMax) - uint32(hdr.YMin) + 1
	if width == 0 || height == 0 {
		return nil, errors.New("pcx: zero-sized image")
	}

	minBytesPerLine := (width*uint32(hdr.BitsPerPixel) + 7) / 8
	if minBytesPerLine%2 != 0 {
		minBytesPerLine++
	}
	if uint32(hdr.BytesPerLine) < minBytesPerLine {
		return nil, fmt.Errorf("pcx: BytesPerLine too small for image width")
	}

	total := uint64(128)

	if hdr.Encoding == 0 {
		size := uint64(hdr.BytesPerLine) * uint64(hdr.NumPlanes) * uint64(height)
		skipped, err := io.CopyN(io.Discard, r, int64(size))
		if err != nil {
			return &ScanResult{Size: total + uint64(skipped), Partial: true}, nil
		}
		total += uint64(skipped)
	} else {
		for y := uint32(0); y < height; y++ {
			for p := byte(0); p < hdr.NumPlanes; p++ {
				consumed, err := pcxReadRLEScanline(r, hdr.BytesPerLine)
				total += uint64(consumed)
				if err != nil {
					return &ScanResult{Size: total, Partial: true}, nil
				}
			}
		}
	}

	if hdr.Version == 5 && hdr.BitsPerPixel == 8 {
		marker, err := r.ReadByte()
		if err != nil {
			return &ScanResult{Size: total}, nil
		}
		total++
		if marker == 0x0C {
			skipped, err := r.Discard(256)
			total += uint64(skipped)
			if err != nil {
				return &ScanResult{Size: total, Partial: true}, nil
			}
		}
	}
	return &ScanResult{Size: total}, nil
}

package sig

import (
	"encoding/binary"
	"fmt"
)

var bmpSignature = Signature{
	Ext:         "bmp",
	Description: "Windows bitmap image",
	Signatures:  [][]byte{{'B', 'M'}},
	MinSize:     54,
	ScanFile:    scanBMP,
}

type bmpFileHeader struct {
	Magic      [2]byte
	FileSize   uint32
	Reserved1  uint16
	Reserved2  uint16
	PixelArray uint32
}

// scanBMP validates the BITMAPFILEHEADER against the DIB header that
// follows it and trusts the embedded file size, adapted from the
// teacher's ScanBMP.
func scanBMP(r *Reader) (*ScanResult, error) {
	var fh bmpFileHeader
	if err := binary.Read(r, binary.LittleEndian, &fh); err != nil {
		return nil, err
	}
	if fh.Magic != [2]byte{'B', 'M'} {
		return nil, fmt.Errorf("bmp: bad magic")
	}

	var dibSize uint32
	if err := binary.Read(r, binary.LittleEndian, &dibSize); err != nil {
		return nil, err
	}

	switch dibSize {
	case 12, 40, 52, 56, 64, 108, 124:
	default:
		return nil, fmt.Errorf("bmp: unsupported DIB header size %d", dibSize)
	}
	if dibSize < 12 || uint64(fh.PixelArray) < uint64(14+dibSize) {
		return nil, fmt.Errorf("bmp: pixel array offset precedes headers")
	}

	if dibSize == 12 {
		var hdr struct {
			Width, Height          int16
			Planes, BitCount       uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, err
		}
		if err := bmpCheckBitCount(hdr.BitCount); err != nil {
			return nil, err
		}
	} else {
		remaining := dibSize - 4
		var hdr struct {
			Width, Height             int32
			Planes, BitCount          uint16
			Compression               uint32
			ImageSize                 uint32
			XPelsPerMeter, YPelsPerMeter int32
			ColorsUsed, ColorsImportant  uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, err
		}
		remaining -= 36
		if err := bmpCheckBitCount(hdr.BitCount); err != nil {
			return nil, err
		}
		if hdr.Compression > 6 {
			return nil, fmt.Errorf("bmp: unsupported compression %d", hdr.Compression)
		}
		if remaining > 0 {
			if _, err := r.Discard(int(remaining)); err != nil {
				return nil, err
			}
		}
	}

	if uint64(fh.FileSize) < uint64(fh.PixelArray) {
		return nil, fmt.Errorf("bmp: file size smaller than pixel array offset")
	}

	remainder := int64(fh.FileSize) - int64(r.BytesRead())
	if remainder < 0 {
		return nil, fmt.Errorf("bmp: header overruns declared file size")
	}
	if remainder > 0 {
		if _, err := r.Discard(int(remainder)); err != nil {
			return nil, err
		}
	}

	return &ScanResult{Size: uint64(fh.FileSize)}, nil
}

func bmpCheckBitCount(bitCount uint16) error {
	switch bitCount {
	case 1, 4, 8, 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("bmp: unsupported bit count %d", bitCount)
	}
}

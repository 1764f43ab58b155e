package sig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var wmaSignature = Signature{
	Ext:         "wma",
	Description: "Windows Media Audio (ASF container)",
	Signatures:  [][]byte{asfHeaderGUID},
	MinSize:     minASFHeaderObjSize,
	ScanFile:    scanWMA,
}

// GUIDs for ASF objects (WMA/WMV are built on ASF), little-endian as
// they appear on disk.
var (
	asfHeaderGUID = []byte{
		0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11,
		0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C,
	}
	asfFilePropGUID = []byte{
		0xA1, 0xDC, 0xAB, 0x8C, 0x47, 0xA9, 0xCF, 0x11,
		0x8E, 0xE4, 0x00, 0xC0, 0x0C, 0x20, 0x53, 0x65,
	}
	asfStreamPropGUID = []byte{
		0x91, 0x07, 0xDC, 0xB7, 0xB7, 0xA9, 0xCF, 0x11,
		0x8E, 0xE6, 0x00, 0xC0, 0x0C, 0x20, 0x53, 0x65,
	}
	streamTypeWMA = []byte{
		0x40, 0x9E, 0x69, 0xF8, 0x4D, 0x5B, 0xCF, 0x11,
		0xA8, 0xFD, 0x00, 0x80, 0x5F, 0x5C, 0x44, 0x2B,
	}
)

const (
	minASFHeaderObjSize           = 30
	minGeneralSubObjectHeaderSize = 24
	minFilePropObjSize            = 40
	filePropFileSizeOffset        = 40
	minStreamPropObjSize          = 40
	streamPropStreamTypeOffset    = 24
)

// scanWMA walks the ASF header's sub-object list looking for the File
// Properties Object (which carries the definitive total file size) and
// a Stream Properties Object whose stream type is WMA audio, adapted
// from the teacher's ScanWMA.
func scanWMA(r *Reader) (*ScanResult, error) {
	var buf [minASFHeaderObjSize]byte
	if _, err := r.Read(buf[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(buf[:16], asfHeaderGUID) {
		return nil, errors.New("wma: missing ASF header GUID")
	}

	headerObjectSize := binary.LittleEndian.Uint64(buf[16:24])
	numHeaderObjects := binary.LittleEndian.Uint32(buf[24:28])
	if headerObjectSize < minASFHeaderObjSize || numHeaderObjects < 4 {
		return nil, errors.New("wma: malformed ASF header object")
	}

	var totalFileSize uint64
	var sawWMAStream bool
	bytesRead := uint64(minASFHeaderObjSize)

	var sub [minGeneralSubObjectHeaderSize]byte
	for i := uint32(0); i < numHeaderObjects; i++ {
		if bytesRead+minGeneralSubObjectHeaderSize > headerObjectSize {
			return nil, errors.New("wma: sub-object extends beyond header")
		}
		if _, err := r.Read(sub[:]); err != nil {
			return nil, err
		}

		objID := sub[:16]
		objSize := binary.LittleEndian.Uint64(sub[16:24])

		const maxSafeObjectSize = uint64(2 * 1000 * 1024 * 1024)
		if objSize < minGeneralSubObjectHeaderSize || objSize > maxSafeObjectSize {
			return nil, fmt.Errorf("wma: invalid sub-object size %d", objSize)
		}
		if bytesRead+objSize > headerObjectSize {
			return nil, errors.New("wma: sub-object extends beyond header boundary")
		}

		switch {
		case bytes.Equal(objID, asfFilePropGUID):
			if objSize < minFilePropObjSize {
				return nil, errors.New("wma: invalid File Properties Object size")
			}
			body, err := r.Peek(int(objSize) - minGeneralSubObjectHeaderSize)
			if err != nil {
				return nil, err
			}
			fileSizeOffset := filePropFileSizeOffset - minGeneralSubObjectHeaderSize
			if fileSizeOffset+8 > len(body) {
				return nil, errors.New("wma: truncated File Properties Object")
			}
			totalFileSize = binary.LittleEndian.Uint64(body[fileSizeOffset : fileSizeOffset+8])
			if totalFileSize < headerObjectSize {
				return nil, errors.New("wma: implausible total file size")
			}
		case bytes.Equal(objID, asfStreamPropGUID):
			if objSize < minStreamPropObjSize {
				return nil, errors.New("wma: invalid Stream Properties Object size")
			}
			body, err := r.Peek(int(objSize) - minGeneralSubObjectHeaderSize)
			if err != nil {
				return nil, err
			}
			streamTypeOffset := streamPropStreamTypeOffset - minGeneralSubObjectHeaderSize
			if streamTypeOffset+16 > len(body) {
				return nil, errors.New("wma: truncated Stream Properties Object")
			}
			if bytes.Equal(body[streamTypeOffset:streamTypeOffset+16], streamTypeWMA) {
				sawWMAStream = true
			}
		}

		if _, err := r.Discard(int(objSize) - minGeneralSubObjectHeaderSize); err != nil {
			return nil, err
		}
		bytesRead += objSize
	}

	if totalFileSize == 0 {
		return nil, errors.New("wma: file size not found in ASF header")
	}
	if totalFileSize < bytesRead {
		return nil, errors.New("wma: declared size smaller than parsed header")
	}
	if !sawWMAStream {
		return nil, errors.New("wma: no WMA audio stream in ASF header")
	}
	return &ScanResult{Size: totalFileSize}, nil
}

package sig

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

var pngSignature = Signature{
	Ext:         "png",
	Description: "PNG image",
	Signatures:  [][]byte{[]byte(pngMagic)},
	MinSize:     67,
	Importance:  ImportanceHigh,
	ScanFile:    scanPNG,
}

const pngMagic = "\x89PNG\r\n\x1a\n"

var errPNGChunkOrder = fmt.Errorf("png: invalid chunk order")

const (
	pngStart = iota
	pngSeenIHDR
	pngSeenPLTE
	pngSeentRNS
	pngSeenIDAT
	pngSeenIEND
)

type pngDecoder struct {
	r     io.Reader
	crc   hash.Hash32
	stage int
	tmp   [3 * 256]byte
}

func (d *pngDecoder) checkHeader() error {
	if _, err := io.ReadFull(d.r, d.tmp[:len(pngMagic)]); err != nil {
		return err
	}
	if string(d.tmp[:len(pngMagic)]) != pngMagic {
		return fmt.Errorf("png: bad signature")
	}
	return nil
}

func (d *pngDecoder) parseChunk() error {
	if _, err := io.ReadFull(d.r, d.tmp[:8]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(d.tmp[:4])
	d.crc.Reset()
	d.crc.Write(d.tmp[4:8])

	writeCheck := func(write bool) error {
		if write {
			if _, err := io.ReadFull(d.r, d.tmp[:length]); err != nil {
				return err
			}
			d.crc.Write(d.tmp[:length])
		}
		return d.verifyChecksum()
	}

	switch string(d.tmp[4:8]) {
	case "IHDR":
		if d.stage != pngStart {
			return errPNGChunkOrder
		}
		d.stage = pngSeenIHDR
		return writeCheck(true)
	case "PLTE":
		if d.stage != pngSeenIHDR {
			return errPNGChunkOrder
		}
		d.stage = pngSeenPLTE
		return writeCheck(true)
	case "tRNS":
		d.stage = pngSeentRNS
		return writeCheck(true)
	case "IDAT":
		if d.stage < pngSeenIHDR || d.stage > pngSeenIDAT {
			return errPNGChunkOrder
		} else if d.stage == pngSeenIDAT {
			break
		}
		d.stage = pngSeenIDAT

		for n := uint32(0); n < length; n += uint32(len(d.tmp)) {
			m := min(len(d.tmp), int(length-n))
			if _, err := io.ReadFull(d.r, d.tmp[:m]); err != nil {
				return err
			}
			d.crc.Write(d.tmp[:m])
		}
		return writeCheck(false)
	case "IEND":
		if d.stage != pngSeenIDAT {
			return errPNGChunkOrder
		}
		d.stage = pngSeenIEND
		return writeCheck(true)
	}

	if length > 0x7fffffff {
		return fmt.Errorf("png: bad chunk length: %d", length)
	}
	var ignored [4096]byte
	for length > 0 {
		n, err := io.ReadFull(d.r, ignored[:min(len(ignored), int(length))])
		if err != nil {
			return err
		}
		d.crc.Write(ignored[:n])
		length -= uint32(n)
	}
	return d.verifyChecksum()
}

func (d *pngDecoder) verifyChecksum() error {
	if _, err := io.ReadFull(d.r, d.tmp[:4]); err != nil {
		return err
	}
	if binary.BigEndian.Uint32(d.tmp[:4]) != d.crc.Sum32() {
		return fmt.Errorf("png: checksum mismatch")
	}
	return nil
}

// scanPNG walks the PNG chunk stream validating chunk ordering and CRCs,
// adapted from the teacher's format.ScanPNG (itself derived from the
// standard library's image/png decoder).
func scanPNG(r *Reader) (*ScanResult, error) {
	d := &pngDecoder{r: r, crc: crc32.NewIEEE()}

	if err := d.checkHeader(); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	for d.stage != pngSeenIEND {
		if err := d.parseChunk(); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return &ScanResult{Size: r.BytesRead()}, nil
}

package sig

import (
	"encoding/binary"
	"fmt"
)

var gifSignature = Signature{
	Ext:         "gif",
	Description: "GIF image",
	Signatures:  [][]byte{[]byte("GIF87a"), []byte("GIF89a")},
	MinSize:     32,
	ScanFile:    scanGIF,
}

const (
	gifExtensionIntroducer = 0x21
	gifImageDescriptor     = 0x2C
	gifTrailer             = 0x3B

	gifGraphicControlLabel = 0xF9
	gifCommentLabel        = 0xFE
	gifPlainTextLabel      = 0x01
	gifApplicationLabel    = 0xFF
)

// scanGIF walks the logical screen descriptor, any global color table,
// and the block stream until the trailer byte, adapted from the
// teacher's ScanGIF (itself derived from the standard library's
// image/gif decoder's block structure).
func scanGIF(r *Reader) (*ScanResult, error) {
	var magic [6]byte
	if _, err := r.Read(magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != "GIF87a" && string(magic[:]) != "GIF89a" {
		return nil, fmt.Errorf("gif: bad magic")
	}

	var lsd struct {
		Width, Height   uint16
		Flags           byte
		BgColorIndex    byte
		PixelAspectRatio byte
	}
	if err := binary.Read(r, binary.LittleEndian, &lsd); err != nil {
		return nil, err
	}

	if lsd.Flags&0x80 != 0 {
		size := 3 * (1 << ((lsd.Flags & 0x07) + 1))
		if _, err := r.Discard(size); err != nil {
			return nil, err
		}
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch b {
		case gifTrailer:
			return &ScanResult{Size: r.BytesRead()}, nil
		case gifImageDescriptor:
			if err := gifSkipImageDescriptor(r); err != nil {
				return nil, err
			}
		case gifExtensionIntroducer:
			if err := gifSkipExtension(r); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("gif: unknown block introducer 0x%02x", b)
		}
	}
}

func gifSkipImageDescriptor(r *Reader) error {
	var desc struct {
		Left, Top, Width, Height uint16
		Flags                    byte
	}
	if err := binary.Read(r, binary.LittleEndian, &desc); err != nil {
		return err
	}
	if desc.Flags&0x80 != 0 {
		size := 3 * (1 << ((desc.Flags & 0x07) + 1))
		if _, err := r.Discard(size); err != nil {
			return err
		}
	}

	if _, err := r.ReadByte(); err != nil {
		return err
	}
	return gifSkipSubBlocks(r)
}

func gifSkipExtension(r *Reader) error {
	label, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch label {
	case gifGraphicControlLabel, gifCommentLabel, gifPlainTextLabel, gifApplicationLabel:
	default:
		return fmt.Errorf("gif: unknown extension label 0x%02x", label)
	}
	return gifSkipSubBlocks(r)
}

func gifSkipSubBlocks(r *Reader) error {
	for {
		n, err := r.ReadByte()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := r.Discard(int(n)); err != nil {
			return err
		}
	}
}

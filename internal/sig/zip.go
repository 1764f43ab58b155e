package sig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var zipSignature = Signature{
	Ext:         "zip",
	Description: "ZIP archive (also covers DOCX/XLSX/PPTX)",
	Signatures: [][]byte{
		{'P', 'K', 0x03, 0x04},
		{'P', 'K', '0', '0', 'P', 'K', 0x03, 0x04},
	},
	Footer:     []byte{0x50, 0x4B, 0x05, 0x06},
	MinSize:    22,
	Importance: ImportanceHigh,
	ScanFile:   scanZIP,
}

var errInvalidZIP = errors.New("zip: invalid archive")

const (
	maxZipEntrySize = math.MaxUint32

	zipSig4 uint32 = 0x04034B50
	zipSig8 uint64 = 0x30304B5004034B50

	zipCentralDirHeader      uint32 = 0x02014B50
	zipFileEntryHeader       uint32 = 0x04034B50
	zipEndCentralDirHeader   uint32 = 0x06054B50
	zipDataDescriptorHeader         = 0x08074B50
)

type zipFileEntry struct {
	Version          uint16
	Flags            uint16
	Compression      uint16
	LastModTime      uint16
	LastModDate      uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLength   uint16
	ExtraLength      uint16
}

type zipState struct {
	contentTypesSeen, relsSeen                          bool
	wordDocumentSeen, pptPresentationSeen, xlWorkbookSeen bool
}

// scanZIP walks local file headers followed by the central directory
// and end-of-central-directory record, adapted from the teacher's
// ScanZIP, including its OOXML (DOCX/XLSX/PPTX) marker-file inference.
func scanZIP(r *Reader) (*ScanResult, error) {
	var st zipState

	if err := zipCheckHeader(r); err != nil {
		return nil, err
	}

	entries := 0
	var hdrBuf [4]byte
	for {
		if _, err := r.Read(hdrBuf[:]); err != nil {
			return nil, err
		}

		switch hdr := binary.LittleEndian.Uint32(hdrBuf[:]); hdr {
		case zipFileEntryHeader:
			if err := zipParseFileEntry(r, &st); err != nil {
				return nil, err
			}
			entries++
		case zipCentralDirHeader:
			if entries == 0 {
				return nil, fmt.Errorf("%w: no file entries", errInvalidZIP)
			}
			size, err := zipParseCentralDir(r)
			if err != nil {
				return nil, err
			}
			return &ScanResult{Size: size, Ext: st.inferExt()}, nil
		default:
			return nil, errInvalidZIP
		}
	}
}

func zipCheckHeader(r *Reader) error {
	buf, err := r.Peek(4)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidZIP, err)
	}
	if binary.LittleEndian.Uint32(buf) != zipSig4 {
		buf8, err := r.Peek(8)
		if err != nil {
			return err
		}
		if binary.LittleEndian.Uint64(buf8) != zipSig8 {
			return fmt.Errorf("%w: bad signature", errInvalidZIP)
		}
	}
	return nil
}

func zipParseFileEntry(r *Reader, st *zipState) error {
	var entry zipFileEntry
	if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
		return err
	}

	nameBuf := make([]byte, entry.FilenameLength)
	if _, err := r.Read(nameBuf); err != nil {
		return err
	}
	st.processFileName(string(nameBuf))

	if entry.ExtraLength > 0 {
		if _, err := r.Discard(int(entry.ExtraLength)); err != nil {
			return err
		}
	}

	size := entry.UncompressedSize
	if entry.Compression != 0 {
		size = entry.CompressedSize
	}

	hasDescriptor := entry.Flags&0x0008 != 0
	if hasDescriptor && size != 0 {
		return fmt.Errorf("%w: unexpected size with data descriptor flag", errInvalidZIP)
	}

	if hasDescriptor {
		return zipSeekDescriptor(r)
	}
	if size > 0 {
		_, err := r.Discard(int(size))
		return err
	}
	return nil
}

func zipSeekDescriptor(r *Reader) error {
	marker := []byte{0x50, 0x4B, 0x07, 0x08}
	found, err := SeekToMarker(r, marker, maxZipEntrySize)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: data descriptor not found", errInvalidZIP)
	}
	var buf [16]byte
	if _, err := r.Read(buf[:]); err != nil {
		return err
	}
	if !bytes.Equal(buf[:4], marker) {
		return fmt.Errorf("%w: descriptor misaligned", errInvalidZIP)
	}
	return nil
}

func zipParseCentralDir(r *Reader) (uint64, error) {
	eocd := []byte{0x50, 0x4B, 0x05, 0x06}
	found, err := SeekToMarker(r, eocd, 66*1024)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: missing end of central directory", errInvalidZIP)
	}

	var buf [22]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, err
	}
	commentLen := binary.LittleEndian.Uint16(buf[20:])
	return r.BytesRead() + uint64(commentLen), nil
}

func (s *zipState) processFileName(name string) {
	switch name {
	case "[Content_Types].xml":
		s.contentTypesSeen = true
	case "_rels/.rels":
		s.relsSeen = true
	case "word/document.xml":
		s.wordDocumentSeen = true
	case "ppt/presentation.xml":
		s.pptPresentationSeen = true
	case "xl/workbook.xml":
		s.xlWorkbookSeen = true
	}
}

func (s *zipState) inferExt() string {
	isOffice := s.contentTypesSeen && s.relsSeen
	switch {
	case isOffice && s.wordDocumentSeen:
		return "docx"
	case isOffice && s.pptPresentationSeen:
		return "pptx"
	case isOffice && s.xlWorkbookSeen:
		return "xlsx"
	default:
		return "zip"
	}
}

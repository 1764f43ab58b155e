package sig

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const rarMHDPasswordFlag = 0x0080

var (
	rar15Magic = []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x00}
	rar50Magic = []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x01, 0x00}
)

var rarSignature = Signature{
	Ext:         "rar",
	Description: "RAR archive",
	Signatures:  [][]byte{rar15Magic, rar50Magic},
	MinSize:     20,
	ScanFile:    scanRAR,
}

// scanRAR dispatches to the 1.5 or 5.0 block walker depending on which
// magic matched, adapted from the teacher's ScanRAR.
func scanRAR(r *Reader) (*ScanResult, error) {
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		return nil, err
	}

	if bytes.Equal(buf[:len(rar15Magic)], rar15Magic) {
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
		return scanRar15(r)
	}
	if bytes.Equal(buf[:len(rar50Magic)], rar50Magic) {
		return scanRar50(r)
	}
	return nil, fmt.Errorf("rar: unrecognized signature")
}

func scanRar15(r *Reader) (*ScanResult, error) {
	const rar15ArchiveHeader byte = 0x73

	hdrType, flags, err := readRar15Block(r)
	if err != nil {
		return nil, fmt.Errorf("rar: reading 1.5 header: %w", err)
	}
	if hdrType != rar15ArchiveHeader {
		return nil, fmt.Errorf("rar: unexpected header type 0x%02x", hdrType)
	}
	if (flags>>8)&rarMHDPasswordFlag != 0 {
		return nil, fmt.Errorf("rar: password protected")
	}

	for {
		hdrType, _, err := readRar15Block(r)
		if err != nil {
			return nil, err
		}
		if hdrType == 0x7B {
			break
		}
	}
	return &ScanResult{Size: r.BytesRead()}, nil
}

func readRar15Block(r *Reader) (byte, uint16, error) {
	var hdrBuf [7]byte
	n, err := r.Read(hdrBuf[:])
	if err != nil {
		return 0, 0, err
	}

	hdrType := hdrBuf[2]
	flags := binary.LittleEndian.Uint16(hdrBuf[3:5])
	if hdrType < 0x72 || hdrType > 0x7B {
		return hdrType, 0, fmt.Errorf("rar: invalid header type 0x%02x", hdrType)
	}
	if hdrType == 0x7B {
		return hdrType, flags, nil
	}

	payloadSize := uint32(binary.LittleEndian.Uint16(hdrBuf[5:7]))
	switch hdrType {
	case 0x74, 0x75, 0x7A:
		if hdrType == 0x75 && flags&0x0008 == 0 {
			break
		}
		if _, err := r.Read(hdrBuf[:4]); err != nil {
			return hdrType, flags, err
		}
		payloadSize += binary.LittleEndian.Uint32(hdrBuf[:])
		n += 4
	case 0x78:
		var recoveryBuf [8]byte
		if _, err := r.Read(recoveryBuf[:]); err != nil {
			return hdrType, flags, err
		}
		numBlocks := binary.LittleEndian.Uint32(recoveryBuf[:4])
		blockSize := binary.LittleEndian.Uint32(recoveryBuf[4:])
		payloadSize += numBlocks * blockSize
		n += 8
	}

	if payloadSize <= uint32(n) {
		return hdrType, flags, fmt.Errorf("rar: payload size %d <= header size %d", payloadSize, n)
	}
	if _, err := r.Discard(int(payloadSize) - n); err != nil {
		return hdrType, flags, err
	}
	return hdrType, flags, nil
}

func scanRar50(r *Reader) (*ScanResult, error) {
	hdrType, flags, err := readRar5Block(r)
	if err != nil {
		return nil, fmt.Errorf("rar: reading 5.0 header: %w", err)
	}
	if hdrType != 0x1 {
		return nil, fmt.Errorf("rar: unexpected 5.0 header type 0x%x", hdrType)
	}
	if (flags>>56)&rarMHDPasswordFlag != 0 {
		return nil, fmt.Errorf("rar: 5.0 archive password protected")
	}

	for {
		hdrType, _, err := readRar5Block(r)
		if hdrType == 0x5 {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &ScanResult{Size: r.BytesRead()}, nil
}

func readRar5Block(r *Reader) (uint64, uint64, error) {
	if _, err := r.Discard(4); err != nil {
		return 0, 0, err
	}

	hdrSize, n, err := readRarVarInt(r)
	if err != nil {
		return 0, 0, err
	}
	if n > 3 || hdrSize > 2*1024*1024 {
		return 0, 0, fmt.Errorf("rar: invalid 5.0 header size")
	}

	bytesRead := 0

	hdrType, n, err := readRarVarInt(r)
	if err != nil {
		return hdrType, 0, err
	}
	bytesRead += n

	flags, n, err := readRarVarInt(r)
	if err != nil {
		return hdrType, flags, err
	}
	bytesRead += n

	totalSize := hdrSize
	if flags&0x0001 != 0 {
		_, n, err := readRarVarInt(r)
		if err != nil {
			return hdrType, flags, err
		}
		bytesRead += n
	}
	if flags&0x0002 != 0 {
		dataSize, n, err := readRarVarInt(r)
		if err != nil {
			return hdrType, flags, err
		}
		bytesRead += n
		totalSize += dataSize
	}

	discard := int(totalSize) - bytesRead
	if discard <= 0 {
		return hdrType, flags, fmt.Errorf("rar: block size smaller than bytes read")
	}
	if _, err := r.Discard(discard); err != nil {
		return hdrType, flags, err
	}
	return hdrType, flags, nil
}

func readRarVarInt(r *Reader) (uint64, int, error) {
	var val uint64
	var shift uint
	var n int
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		val |= uint64(b&0x7F) << shift
		n++
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if n > 10 {
			return 0, n, fmt.Errorf("rar: variable-length integer too long")
		}
	}
	return val, n, nil
}

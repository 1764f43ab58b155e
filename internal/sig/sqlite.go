package sig

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const sqliteMagic = "SQLite format 3\x00"

var sqliteSignature = Signature{
	Ext:         "sqlite",
	Description: "SQLite database",
	Signatures:  [][]byte{[]byte(sqliteMagic)},
	MinSize:     100,
	ScanFile:    scanSQLite,
}

// scanSQLite reads the fixed 100-byte database header and trusts the
// declared page count when the change-counter fields agree, adapted
// from the teacher's ScanSQLite. When they disagree (a WAL-mode file
// mid-write) the size is reported as 0 with Partial set; the carver
// rejects a hit with no known size.
func scanSQLite(r *Reader) (*ScanResult, error) {
	var hdr [100]byte
	if _, err := r.Read(hdr[:]); err != nil {
		return nil, fmt.Errorf("sqlite: short header: %w", err)
	}
	if !bytes.Equal(hdr[:len(sqliteMagic)], []byte(sqliteMagic)) {
		return nil, fmt.Errorf("sqlite: bad magic")
	}

	pageSize := int(binary.BigEndian.Uint16(hdr[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if !sqliteIsPowerOfTwo(uint32(pageSize)) || pageSize < 512 || pageSize > 65536 {
		return nil, fmt.Errorf("sqlite: invalid page size %d", pageSize)
	}

	changeCounter := binary.BigEndian.Uint32(hdr[24:28])
	pageCount := binary.BigEndian.Uint32(hdr[28:32])
	versionValidFor := binary.BigEndian.Uint32(hdr[92:96])

	var size uint64
	if pageCount != 0 && changeCounter == versionValidFor {
		size = uint64(pageCount) * uint64(pageSize)
	}
	return &ScanResult{Size: size, Partial: size == 0}, nil
}

func sqliteIsPowerOfTwo(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}

// Package ntfs implements the NTFS MFT parser (spec component E): boot
// sector decoding, MFT record framing with fixup application, attribute
// walking, and non-resident data-run decoding, grounded on the
// shubham030/recovery reference implementation and restructured around
// this module's block.Source abstraction and unified Entry model.
package ntfs

import "fmt"

// BootSector holds the subset of the NTFS BPB needed to locate the MFT
// and compute cluster/record geometry.
type BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	MFTCluster        uint64
	MFTMirrorCluster  uint64
	ClustersPerMFTRec int8
}

// ParseBootSector validates the "NTFS    " OEM ID at offset 3 and
// extracts the handful of BPB fields the MFT walker needs.
func ParseBootSector(buf []byte) (*BootSector, error) {
	if len(buf) < 512 {
		return nil, fmt.Errorf("ntfs: boot sector must be at least 512 bytes")
	}
	if string(buf[3:7]) != "NTFS" {
		return nil, fmt.Errorf("ntfs: missing NTFS OEM identifier")
	}

	bs := &BootSector{
		BytesPerSector:    le16(buf[11:13]),
		SectorsPerCluster: buf[13],
		MFTCluster:        le64(buf[48:56]),
		MFTMirrorCluster:  le64(buf[56:64]),
		ClustersPerMFTRec: int8(buf[64]),
	}
	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 {
		return nil, fmt.Errorf("ntfs: zero sector or cluster size")
	}
	return bs, nil
}

func (bs *BootSector) ClusterSize() int {
	return int(bs.SectorsPerCluster) * int(bs.BytesPerSector)
}

// RecordSize resolves the MFT record size: a positive
// ClustersPerMFTRec scales the cluster size directly, a negative value
// is a log2 byte count (NTFS's usual encoding when the cluster is
// larger than the desired record size).
func (bs *BootSector) RecordSize() int {
	if bs.ClustersPerMFTRec < 0 {
		return 1 << uint(-bs.ClustersPerMFTRec)
	}
	return int(bs.ClustersPerMFTRec) * bs.ClusterSize()
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

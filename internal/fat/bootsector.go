// Package fat implements the FAT32/FAT16 parser (spec component D): boot
// sector decoding, FAT table loading, directory traversal (including
// deleted entries and long file names), and cluster-chain resolution,
// grounded on the teacher's internal/disk.FatBootSector and generalized
// into a standalone filesystem reader.
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

var defaultEncoding = binary.LittleEndian

// BootSector is the BIOS Parameter Block shared by FAT12/16/32, decoded
// field-by-field with restruct rather than via tagged struct padding
// tricks, the way the teacher's FatBootSector relied on raw byte-array
// fields for endian-sensitive values.
type BootSector struct {
	Ignored           [3]byte
	SystemID          [8]byte
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootDirEntries    uint16
	Sectors16         uint16
	Media             uint8
	FATLength16       uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	Sectors32         uint32

	// FAT32-only extension. On FAT12/16 volumes these bytes hold the
	// rest of the extended BPB instead (drive number, extended boot
	// signature, volume label) and are left unparsed.
	FAT32Length  uint32
	Flags        uint16
	Version      uint16
	RootCluster  uint32
	InfoSector   uint16
	BackupBoot   uint16
	Reserved12   [12]byte
	DriveNumber  uint8
	Reserved1    uint8
	BootSig      uint8
	VolumeID     uint32
	VolumeLabel  [11]byte
	FilesysType  [8]byte
}

const bootSectorSize = 512

type FATType int

const (
	FAT12 FATType = iota
	FAT16
	FAT32
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// ParseBootSector decodes a 512-byte FAT boot sector and validates the
// 0xAA55 signature, mirroring the teacher's ReadFatBootSectorFrom.
func ParseBootSector(data []byte) (*BootSector, error) {
	if len(data) != bootSectorSize {
		return nil, fmt.Errorf("fat: boot sector must be %d bytes, got %d", bootSectorSize, len(data))
	}
	if data[510] != 0x55 || data[511] != 0xAA {
		return nil, fmt.Errorf("fat: missing 0xAA55 boot signature")
	}

	var bs BootSector
	if err := restruct.Unpack(data[:90], defaultEncoding, &bs); err != nil {
		return nil, fmt.Errorf("fat: decoding boot sector: %w", err)
	}
	if bs.SectorSize == 0 || bs.SectorsPerCluster == 0 {
		return nil, fmt.Errorf("fat: zero sector size or cluster size")
	}
	return &bs, nil
}

func (bs *BootSector) TotalSectors() uint32 {
	if bs.Sectors16 != 0 {
		return uint32(bs.Sectors16)
	}
	return bs.Sectors32
}

func (bs *BootSector) FATLength() uint32 {
	if bs.FATLength16 != 0 {
		return uint32(bs.FATLength16)
	}
	return bs.FAT32Length
}

// FirstDataSector returns the sector offset (relative to the start of
// the volume) of cluster 2, the first addressable data cluster.
func (bs *BootSector) FirstDataSector() uint32 {
	rootDirSectors := (uint32(bs.RootDirEntries)*32 + uint32(bs.SectorSize) - 1) / uint32(bs.SectorSize)
	return uint32(bs.ReservedSectors) + uint32(bs.NumFATs)*bs.FATLength() + rootDirSectors
}

func (bs *BootSector) RootDirSectors() uint32 {
	return (uint32(bs.RootDirEntries)*32 + uint32(bs.SectorSize) - 1) / uint32(bs.SectorSize)
}

// Type classifies the volume as FAT12/16/32. RootDirEntries is zero on
// every real FAT32 volume (its root directory is just another cluster
// chain), which this checks first; otherwise it falls back to the
// cluster-count thresholds from the Microsoft FAT specification, which
// is what actually distinguishes FAT12 from FAT16.
func (bs *BootSector) Type() FATType {
	if bs.RootDirEntries == 0 && bs.FAT32Length != 0 {
		return FAT32
	}

	dataSectors := bs.TotalSectors() - bs.FirstDataSector()
	clusterCount := dataSectors / uint32(bs.SectorsPerCluster)

	switch {
	case clusterCount < 4085:
		return FAT12
	default:
		return FAT16
	}
}

func (bs *BootSector) ClusterCount() uint32 {
	dataSectors := bs.TotalSectors() - bs.FirstDataSector()
	return dataSectors / uint32(bs.SectorsPerCluster)
}

// ClusterToSector converts a cluster number (>= 2) to an absolute
// sector offset from the start of the volume.
func (bs *BootSector) ClusterToSector(cluster uint32) uint32 {
	return bs.FirstDataSector() + (cluster-2)*uint32(bs.SectorsPerCluster)
}

func (bs *BootSector) ClusterSize() uint32 {
	return uint32(bs.SectorsPerCluster) * uint32(bs.SectorSize)
}

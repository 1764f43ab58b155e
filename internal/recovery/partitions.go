package recovery

import (
	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/disk"
	"github.com/ostafen/digler/internal/fat"
)

// DiscoverPartitions locates the partitions worth scanning on src,
// adapted from the teacher's scan.DiscoverPartitions/GetMBRPartitions
// but built against block.Source instead of *os.File so it runs equally
// against a whole-disk source or an in-memory test fixture. When no MBR
// is found (or it yields nothing), the whole source is treated as a
// single partition, matching the teacher's fallback.
func DiscoverPartitions(src block.Source) ([]disk.Partition, error) {
	var firstSector [512]byte
	if _, err := block.ReadFull(src, firstSector[:], 0); err != nil {
		return nil, err
	}

	if mbr, err := disk.ParseMBR(firstSector[:]); err == nil {
		parts, err := partitionsFromMBR(src, mbr)
		if err != nil {
			return nil, err
		}
		if len(parts) > 0 {
			return parts, nil
		}
	}

	return []disk.Partition{fullSourcePartition(src)}, nil
}

func fullSourcePartition(src block.Source) disk.Partition {
	blockSize := src.SectorSize()
	if blockSize == 0 {
		blockSize = disk.DefaultBlocksize
	}
	return disk.Partition{
		FSType:    0,
		Num:       0,
		Offset:    0,
		Size:      src.Length(),
		BlockSize: blockSize,
	}
}

func partitionsFromMBR(src block.Source, mbr *disk.MBR) ([]disk.Partition, error) {
	// Protective MBR for a GPT disk: treat the single declared entry as
	// the whole usable range, the teacher's own simplification.
	if p := mbr.PartitionEntries[0]; p.PartitionType == disk.PartitionTypeGPT {
		offset := int64(p.ReadStartLBA()) * disk.DefaultBlocksize
		size := uint64(p.ReadTotalSectors()) * uint64(disk.DefaultBlocksize)
		return []disk.Partition{{
			FSType:    0,
			Num:       0,
			Offset:    uint64(offset),
			BlockSize: disk.DefaultBlocksize,
			Size:      size,
		}}, nil
	}

	var partitions []disk.Partition
	for n, p := range mbr.PartitionEntries {
		switch p.PartitionType {
		case disk.PartitionTypeFAT12,
			disk.PartitionTypeFAT16LessThan32MB,
			disk.PartitionTypeFAT16GreaterThan32MB,
			disk.PartitionTypeFAT16LBA,
			disk.PartitionTypeFAT32LBA,
			disk.PartitionTypeFAT32CHS:

			offset := int64(p.ReadStartLBA()) * disk.DefaultBlocksize

			var buf [512]byte
			if _, err := block.ReadFull(src, buf[:], offset); err != nil {
				continue
			}
			bs, err := fat.ParseBootSector(buf[:])
			if err != nil {
				continue
			}
			partitions = append(partitions, disk.Partition{
				FSType:    0,
				Num:       n,
				Offset:    uint64(offset),
				BlockSize: uint32(bs.SectorSize),
				Size:      uint64(p.ReadTotalSectors()) * uint64(bs.SectorSize),
			})

		case disk.PartitionTypeNTFSHPFSexFATQNX:
			offset := int64(p.ReadStartLBA()) * disk.DefaultBlocksize
			partitions = append(partitions, disk.Partition{
				FSType:    0,
				Num:       n,
				Offset:    uint64(offset),
				BlockSize: disk.DefaultBlocksize,
				Size:      uint64(p.ReadTotalSectors()) * uint64(disk.DefaultBlocksize),
			})
		}
	}
	return partitions, nil
}

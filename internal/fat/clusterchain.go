package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/ostafen/digler/internal/block"
)

const (
	fat12EOC = 0x0FF8
	fat16EOC = 0xFFF8
	fat32EOC = 0x0FFFFFF8

	fat12Bad = 0x0FF7
	fat16Bad = 0xFFF7
	fat32Bad = 0x0FFFFFF7
)

// ClusterRun is a contiguous run of clusters, the unit the carver's
// extractor reads in when recovering a file by directly walking its
// cluster chain rather than trusting directory metadata alone.
type ClusterRun struct {
	FirstCluster uint32
	Count        uint32
}

// FileSystem is a read-only view over a FAT12/16/32 volume, addressed
// through a block.Source so it can run equally against a whole-disk
// image, a partition section, or an in-memory fixture.
type FileSystem struct {
	src  block.Source
	boot *BootSector
	typ  FATType

	fatTable []uint32 // normalized FAT entries, one uint32 per cluster regardless of on-disk width
}

// Open reads and validates the boot sector, then loads the first FAT
// table into memory (FAT tables are small enough â€” low tens of MB at
// most on real FAT32 volumes â€” that walking chains directly against the
// block source would otherwise mean one read per cluster).
func Open(src block.Source) (*FileSystem, error) {
	buf := make([]byte, bootSectorSize)
	if _, err := block.ReadFull(src, buf, 0); err != nil {
		return nil, fmt.Errorf("fat: reading boot sector: %w", err)
	}

	boot, err := ParseBootSector(buf)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{src: src, boot: boot, typ: boot.Type()}
	if err := fs.loadFAT(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSystem) BootSector() *BootSector { return fs.boot }
func (fs *FileSystem) Type() FATType           { return fs.typ }

func (fs *FileSystem) loadFAT() error {
	fatOffset := int64(fs.boot.ReservedSectors) * int64(fs.boot.SectorSize)
	fatBytes := int64(fs.boot.FATLength()) * int64(fs.boot.SectorSize)

	raw := make([]byte, fatBytes)
	if _, err := block.ReadFull(fs.src, raw, fatOffset); err != nil {
		return fmt.Errorf("fat: reading FAT table: %w", err)
	}

	clusters := fs.boot.ClusterCount() + 2
	fs.fatTable = make([]uint32, clusters)

	switch fs.typ {
	case FAT32:
		for i := range fs.fatTable {
			if i*4+4 > len(raw) {
				break
			}
			fs.fatTable[i] = binary.LittleEndian.Uint32(raw[i*4:]) & 0x0FFFFFFF
		}
	case FAT16:
		for i := range fs.fatTable {
			if i*2+2 > len(raw) {
				break
			}
			fs.fatTable[i] = uint32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case FAT12:
		for i := range fs.fatTable {
			off := i + i/2
			if off+2 > len(raw) {
				break
			}
			packed := binary.LittleEndian.Uint16(raw[off:])
			if i%2 == 0 {
				fs.fatTable[i] = uint32(packed & 0x0FFF)
			} else {
				fs.fatTable[i] = uint32(packed >> 4)
			}
		}
	}
	return nil
}

func (fs *FileSystem) isEOC(entry uint32) bool {
	switch fs.typ {
	case FAT32:
		return entry >= fat32EOC
	case FAT16:
		return entry >= fat16EOC
	default:
		return entry >= fat12EOC
	}
}

func (fs *FileSystem) isBad(entry uint32) bool {
	switch fs.typ {
	case FAT32:
		return entry == fat32Bad
	case FAT16:
		return entry == fat16Bad
	default:
		return entry == fat12Bad
	}
}

// ClusterChain follows the FAT starting at firstCluster, returning the
// ordered list of clusters visited. A go-bitmap of visited clusters
// guards against a corrupted FAT forming a cycle, which would
// otherwise spin the walker forever.
func (fs *FileSystem) ClusterChain(firstCluster uint32) ([]uint32, error) {
	if firstCluster < 2 || int(firstCluster) >= len(fs.fatTable) {
		return nil, fmt.Errorf("fat: cluster %d out of range", firstCluster)
	}

	visited := bitmap.New(len(fs.fatTable))
	var chain []uint32

	cluster := firstCluster
	for {
		if visited.Get(int(cluster)) {
			return chain, fmt.Errorf("fat: cluster chain cycle detected at %d", cluster)
		}
		visited.Set(int(cluster), true)
		chain = append(chain, cluster)

		next := fs.fatTable[cluster]
		if fs.isBad(next) {
			return chain, fmt.Errorf("fat: bad cluster %d in chain", cluster)
		}
		if fs.isEOC(next) || next == 0 {
			return chain, nil
		}
		if int(next) >= len(fs.fatTable) {
			return chain, fmt.Errorf("fat: chain points past end of volume at %d", next)
		}
		cluster = next
	}
}

// SequentialChain synthesizes the cluster list a deleted file occupies,
// per spec.md's deleted-entry recovery rule: a deletion only clears the
// directory entry and marks the FAT links free (or, worse, leaves them
// to be reallocated to a later live file), so the FAT chain starting at
// firstCluster can no longer be trusted to belong to this file at all.
// The only address still good is first_cluster, first_cluster+1, ...
// for ceil(size/cluster size) clusters, read sequentially rather than by
// following any FAT-table link.
func (fs *FileSystem) SequentialChain(firstCluster uint32, size uint64) []uint32 {
	clusterSize := uint64(fs.boot.ClusterSize())
	if clusterSize == 0 || firstCluster < 2 {
		return nil
	}

	count := (size + clusterSize - 1) / clusterSize
	if count == 0 {
		count = 1
	}

	maxCluster := uint32(len(fs.fatTable))
	chain := make([]uint32, 0, count)
	for i := uint64(0); i < count; i++ {
		c := firstCluster + uint32(i)
		if c >= maxCluster {
			break
		}
		chain = append(chain, c)
	}
	return chain
}

// Runs collapses a cluster chain into contiguous runs, used by the
// extractor to issue large sequential reads instead of one per cluster.
func Runs(chain []uint32) []ClusterRun {
	var runs []ClusterRun
	for _, c := range chain {
		if len(runs) > 0 {
			last := &runs[len(runs)-1]
			if last.FirstCluster+last.Count == c {
				last.Count++
				continue
			}
		}
		runs = append(runs, ClusterRun{FirstCluster: c, Count: 1})
	}
	return runs
}

// ReadCluster reads the raw bytes of a single cluster.
func (fs *FileSystem) ReadCluster(cluster uint32) ([]byte, error) {
	offset := int64(fs.boot.ClusterToSector(cluster)) * int64(fs.boot.SectorSize)
	buf := make([]byte, fs.boot.ClusterSize())
	if _, err := block.ReadFull(fs.src, buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadChain reads every cluster in chain and concatenates their bytes,
// trimming the final cluster to fileSize when the logical file does
// not fill its last cluster exactly.
func (fs *FileSystem) ReadChain(chain []uint32, fileSize uint64) ([]byte, error) {
	out := make([]byte, 0, len(chain)*int(fs.boot.ClusterSize()))
	for _, c := range chain {
		data, err := fs.ReadCluster(c)
		if err != nil {
			return out, err
		}
		out = append(out, data...)
	}
	if fileSize > 0 && uint64(len(out)) > fileSize {
		out = out[:fileSize]
	}
	return out, nil
}

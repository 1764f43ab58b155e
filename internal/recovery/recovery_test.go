package recovery

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/fat"
)

func TestDiscoverPartitions_NoMBRFallsBackToWholeSource(t *testing.T) {
	img := make([]byte, 4096) // all-zero: no 0xAA55 signature
	src := block.NewMemSource("blank.img", img, 512)

	parts, err := DiscoverPartitions(src)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.EqualValues(t, 0, parts[0].Offset)
	require.EqualValues(t, len(img), parts[0].Size)
}

func TestWantsPartition(t *testing.T) {
	require.True(t, wantsPartition(nil, 3))
	require.True(t, wantsPartition([]int{1, 3}, 3))
	require.False(t, wantsPartition([]int{1, 2}, 3))
}

func TestChunkSizeForMemory_ClampsWithinBounds(t *testing.T) {
	small := chunkSizeForMemory(100 << 20) // 100MiB source
	require.LessOrEqual(t, small, 2<<20)
	require.GreaterOrEqual(t, small, 1<<20)

	large := chunkSizeForMemory(100 << 30) // 100GiB source
	require.LessOrEqual(t, large, 10<<20)
	require.GreaterOrEqual(t, large, 1<<20)
}

func TestUniqueName_AvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, "photo.jpg", uniqueName(dir, "photo.jpg"))

	f, err := os.Create(filepath.Join(dir, "photo.jpg"))
	require.NoError(t, err)
	f.Close()

	require.Equal(t, "photo.jpg.dup1", uniqueName(dir, "photo.jpg"))
}

func TestRunsFromEntry(t *testing.T) {
	runs := runsFromEntry([][2]uint64{{10, 2}, {20, 1}})
	require.Len(t, runs, 2)
	require.EqualValues(t, 10, runs[0].FirstCluster)
	require.EqualValues(t, 2, runs[0].Count)
}

const (
	fatSectorSize  = 512
	fatSecPerClus  = 1
	fatReserved    = 1
	fatNumFATs     = 1
	fatFATSectors  = 1
	fatDataClusters = 8
)

// buildFAT32ImageWithDeletedFile constructs a minimal FAT32 volume with a
// single deleted file entry spanning one data cluster, mirroring
// internal/fat's own buildFAT32Image fixture but with the 0xE5 deleted
// marker and a non-zero size/cluster so fatCandidates has something to
// recover.
func buildFAT32ImageWithDeletedFile(t *testing.T) []byte {
	t.Helper()

	totalSectors := fatReserved + fatNumFATs*fatFATSectors + fatDataClusters*fatSecPerClus
	img := make([]byte, totalSectors*fatSectorSize)

	bs := img[:fatSectorSize]
	binary.LittleEndian.PutUint16(bs[0x0B:], fatSectorSize)
	bs[0x0D] = fatSecPerClus
	binary.LittleEndian.PutUint16(bs[0x0E:], fatReserved)
	bs[0x10] = fatNumFATs
	binary.LittleEndian.PutUint16(bs[0x11:], 0)
	binary.LittleEndian.PutUint32(bs[0x20:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(bs[0x24:], fatFATSectors)
	binary.LittleEndian.PutUint32(bs[0x2C:], 2) // RootCluster
	bs[0x1FE] = 0x55
	bs[0x1FF] = 0xAA

	fatOff := fatReserved * fatSectorSize
	fatTable := img[fatOff : fatOff+fatFATSectors*fatSectorSize]
	binary.LittleEndian.PutUint32(fatTable[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatTable[4:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatTable[8:], 0x0FFFFFF8)  // cluster 2 (root): EOC
	binary.LittleEndian.PutUint32(fatTable[12:], 0x0FFFFFF8) // cluster 3 (deleted file): EOC

	rootOff := (fatReserved + fatNumFATs*fatFATSectors) * fatSectorSize
	root := img[rootOff : rootOff+fatSectorSize]
	copy(root[0:11], []byte{0xE5, 'L', 'L', 'O', ' ', ' ', ' ', ' ', 'J', 'P', 'G'})
	root[11] = 0x20 // ATTR_ARCHIVE
	binary.LittleEndian.PutUint16(root[20:], 0) // FstClusHi
	binary.LittleEndian.PutUint16(root[26:], 3) // FstClusLo
	binary.LittleEndian.PutUint32(root[28:], fatSectorSize)

	dataOff := rootOff + fatSectorSize // cluster 3 (cluster 2 is root, sits right before it)
	copy(img[dataOff:], []byte{0xFF, 0xD8, 0xFF, 0xE0})

	return img
}

func TestFatCandidates_RecoversDeletedEntry(t *testing.T) {
	img := buildFAT32ImageWithDeletedFile(t)
	src := block.NewMemSource("test.img", img, fatSectorSize)

	fsys, err := fat.Open(src)
	require.NoError(t, err)

	cands := fatCandidates(fsys, src.Identity())
	require.Len(t, cands, 1)
	require.Equal(t, "JPG", cands[0].Ext)
	require.EqualValues(t, fatSectorSize, cands[0].Size)
	require.Len(t, cands[0].Runs, 1)
	require.EqualValues(t, 3, cands[0].Runs[0].FirstCluster)
}

// buildFAT32ImageWithMultiClusterDeletedFile constructs a deleted entry
// spanning two clusters whose FAT-table links do NOT describe that
// file: cluster 3 (the entry's first cluster) is zeroed, as a real
// deletion typically leaves it, and cluster 4 (the entry's second
// cluster) is wired to look like it was already reallocated to an
// unrelated live chain. A FAT-table walk starting at cluster 3 would
// stop immediately (entry 0) or splice in the wrong file entirely;
// recovery must still read clusters 3 and 4 sequentially regardless.
func buildFAT32ImageWithMultiClusterDeletedFile(t *testing.T) []byte {
	t.Helper()

	totalSectors := fatReserved + fatNumFATs*fatFATSectors + fatDataClusters*fatSecPerClus
	img := make([]byte, totalSectors*fatSectorSize)

	bs := img[:fatSectorSize]
	binary.LittleEndian.PutUint16(bs[0x0B:], fatSectorSize)
	bs[0x0D] = fatSecPerClus
	binary.LittleEndian.PutUint16(bs[0x0E:], fatReserved)
	bs[0x10] = fatNumFATs
	binary.LittleEndian.PutUint16(bs[0x11:], 0)
	binary.LittleEndian.PutUint32(bs[0x20:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(bs[0x24:], fatFATSectors)
	binary.LittleEndian.PutUint32(bs[0x2C:], 2) // RootCluster
	bs[0x1FE] = 0x55
	bs[0x1FF] = 0xAA

	fatOff := fatReserved * fatSectorSize
	fatTable := img[fatOff : fatOff+fatFATSectors*fatSectorSize]
	binary.LittleEndian.PutUint32(fatTable[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatTable[4:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatTable[8:], 0x0FFFFFF8)  // cluster 2 (root): EOC
	binary.LittleEndian.PutUint32(fatTable[12:], 0)          // cluster 3: zeroed by the deletion
	binary.LittleEndian.PutUint32(fatTable[16:], 0x0FFFFFF8) // cluster 4: looks like an unrelated live EOC

	rootOff := (fatReserved + fatNumFATs*fatFATSectors) * fatSectorSize
	root := img[rootOff : rootOff+fatSectorSize]
	copy(root[0:11], []byte{0xE5, 'L', 'L', 'O', ' ', ' ', ' ', ' ', 'J', 'P', 'G'})
	root[11] = 0x20                              // ATTR_ARCHIVE
	binary.LittleEndian.PutUint16(root[20:], 0)   // FstClusHi
	binary.LittleEndian.PutUint16(root[26:], 3)   // FstClusLo
	binary.LittleEndian.PutUint32(root[28:], 2*fatSectorSize) // size spans 2 clusters

	cluster3Off := rootOff + fatSectorSize
	copy(img[cluster3Off:], []byte{0xFF, 0xD8, 0xFF, 0xE0})
	cluster4Off := rootOff + 2*fatSectorSize
	copy(img[cluster4Off:], []byte{0xAA, 0xBB, 0xCC, 0xDD})

	return img
}

func TestFatCandidates_MultiClusterDeletedFileIgnoresLiveFATLinks(t *testing.T) {
	img := buildFAT32ImageWithMultiClusterDeletedFile(t)
	src := block.NewMemSource("test.img", img, fatSectorSize)

	fsys, err := fat.Open(src)
	require.NoError(t, err)

	cands := fatCandidates(fsys, src.Identity())
	require.Len(t, cands, 1)
	require.EqualValues(t, 2*fatSectorSize, cands[0].Size)
	require.False(t, cands[0].Partial)
	require.Len(t, cands[0].Runs, 1)
	require.EqualValues(t, 3, cands[0].Runs[0].FirstCluster)
	require.EqualValues(t, 2, cands[0].Runs[0].Count)
}

func TestSequentialChain_IgnoresFATLinks(t *testing.T) {
	img := buildFAT32ImageWithMultiClusterDeletedFile(t)
	src := block.NewMemSource("test.img", img, fatSectorSize)

	fsys, err := fat.Open(src)
	require.NoError(t, err)

	chain := fsys.SequentialChain(3, 2*fatSectorSize)
	require.Equal(t, []uint32{3, 4}, chain)
}

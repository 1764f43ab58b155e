package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler/internal/block"
)

const (
	testSectorSize  = 512
	testSecPerClus  = 1
	testReserved    = 1
	testNumFATs     = 1
	testFATSectors  = 1
	testDataClusters = 8
)

// buildFAT32Image constructs a minimal, valid FAT32 volume with a
// single root directory entry, entirely in memory.
func buildFAT32Image(t *testing.T) []byte {
	t.Helper()

	totalSectors := testReserved + testNumFATs*testFATSectors + testDataClusters*testSecPerClus
	img := make([]byte, totalSectors*testSectorSize)

	bs := img[:testSectorSize]
	binary.LittleEndian.PutUint16(bs[0x0B:], testSectorSize)
	bs[0x0D] = testSecPerClus
	binary.LittleEndian.PutUint16(bs[0x0E:], testReserved)
	bs[0x10] = testNumFATs
	binary.LittleEndian.PutUint16(bs[0x11:], 0) // RootDirEntries == 0 on FAT32
	binary.LittleEndian.PutUint16(bs[0x13:], 0)
	binary.LittleEndian.PutUint32(bs[0x20:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(bs[0x24:], testFATSectors) // FAT32Length
	binary.LittleEndian.PutUint32(bs[0x2C:], 2)               // RootCluster
	bs[0x1FE] = 0x55
	bs[0x1FF] = 0xAA

	fatOff := testReserved * testSectorSize
	fat := img[fatOff : fatOff+testFATSectors*testSectorSize]
	binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fat[4:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fat[8:], 0x0FFFFFF8) // cluster 2 (root): EOC, single cluster

	rootOff := (testReserved + testNumFATs*testFATSectors) * testSectorSize
	root := img[rootOff : rootOff+testSectorSize]
	copy(root[0:11], []byte("HELLO   TXT"))
	root[11] = 0x20 // ATTR_ARCHIVE
	binary.LittleEndian.PutUint16(root[20:], 0)  // FstClusHi
	binary.LittleEndian.PutUint16(root[26:], 0)  // FstClusLo == 0 (empty file)
	binary.LittleEndian.PutUint32(root[28:], 0)  // size 0

	return img
}

func TestOpen_ParsesFAT32BootSector(t *testing.T) {
	img := buildFAT32Image(t)
	src := block.NewMemSource("test.img", img, testSectorSize)

	fs, err := Open(src)
	require.NoError(t, err)
	require.Equal(t, FAT32, fs.Type())
	require.EqualValues(t, 2, fs.BootSector().RootCluster)
}

func TestWalk_FindsRootEntry(t *testing.T) {
	img := buildFAT32Image(t)
	src := block.NewMemSource("test.img", img, testSectorSize)

	fs, err := Open(src)
	require.NoError(t, err)

	var found []Entry
	err = fs.Walk(func(path string, e Entry) {
		found = append(found, e)
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "HELLO.TXT", found[0].Name)
	require.False(t, found[0].Deleted)
}

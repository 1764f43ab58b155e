package fat

import (
	"path"

	"github.com/boljen/go-bitmap"
	"github.com/ostafen/digler/internal/block"
)

// maxWalkDepth bounds how many directory levels below the root Walk
// descends into.
const maxWalkDepth = 64

// WalkFunc is invoked once per resolved directory entry; fullPath is
// the "/"-joined path from the root. It has no return value, so a
// callback cannot stop the walk early: Walk visits every entry it can
// reach.
type WalkFunc func(fullPath string, entry Entry)

// Walk traverses the directory tree starting at the root directory,
// invoking fn for every file and directory entry it finds, including
// deleted ones. It deliberately does not recurse into a directory
// entry marked Deleted: a deleted directory's own entries may already
// be overwritten or reused, and the cluster chain recorded in a
// deleted directory's entry is not trustworthy enough to walk further
// â€” spec component D treats a deleted directory as a leaf whose
// immediate entry is reported but not expanded. Recursion stops
// maxWalkDepth levels below the root, and a directory whose first
// cluster was already walked is not walked again, so a looping
// directory structure cannot recurse forever.
func (fs *FileSystem) Walk(fn WalkFunc) error {
	root, err := fs.readRootDirectory()
	if err != nil {
		return err
	}
	return fs.walkDir("/", root, fn, 0, bitmap.New(len(fs.fatTable)))
}

func (fs *FileSystem) readRootDirectory() ([]Entry, error) {
	if fs.typ == FAT32 {
		chain, err := fs.ClusterChain(fs.boot.RootCluster)
		if err != nil {
			return nil, err
		}
		data, err := fs.ReadChain(chain, 0)
		if err != nil {
			return nil, err
		}
		return ReadDirectory(data), nil
	}

	offset := int64(uint32(fs.boot.ReservedSectors)+uint32(fs.boot.NumFATs)*fs.boot.FATLength()) * int64(fs.boot.SectorSize)
	size := int64(fs.boot.RootDirSectors()) * int64(fs.boot.SectorSize)

	data := make([]byte, size)
	if _, err := block.ReadFull(fs.src, data, offset); err != nil {
		return nil, err
	}
	return ReadDirectory(data), nil
}

func (fs *FileSystem) walkDir(dirPath string, entries []Entry, fn WalkFunc, depth int, visited bitmap.Bitmap) error {
	for _, e := range entries {
		full := path.Join(dirPath, e.Name)
		fn(full, e)

		if !e.IsDir() || e.IsVolume() || e.Deleted {
			continue
		}
		if e.FirstCluster < 2 {
			continue // FAT12/16 root-directory alias, already walked
		}

		chain, err := fs.ClusterChain(e.FirstCluster)
		if err != nil {
			continue // corrupt chain: report the entry itself but stop descending
		}
		if depth >= maxWalkDepth || visited.Get(int(e.FirstCluster)) {
			continue
		}
		visited.Set(int(e.FirstCluster), true)
		data, err := fs.ReadChain(chain, 0)
		if err != nil {
			continue
		}
		if err := fs.walkDir(full, ReadDirectory(data), fn, depth+1, visited); err != nil {
			return err
		}
	}
	return nil
}

package block

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const DefaultSectorSize = 512

// FileSource wraps an *os.File pointing at a device node or a regular
// image/disk-dump file. Sector size and length are discovered the way
// the original disk-inspection code does it: an ioctl against block
// devices on Linux, falling back to os.Stat for regular files.
type FileSource struct {
	path       string
	file       *os.File
	length     uint64
	sectorSize uint32
	isDevice   bool
}

// OpenFile opens path read-only and probes its geometry. path may be a
// disk image, a raw block device (/dev/sdX) or any regular file.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("block: stat %q: %w", path, err)
	}

	src := &FileSource{
		path:       path,
		file:       f,
		sectorSize: DefaultSectorSize,
		isDevice:   fi.Mode()&os.ModeDevice != 0,
	}

	if src.isDevice && runtime.GOOS == "linux" {
		if sz, err := sectorSizeLinux(f); err == nil {
			src.sectorSize = sz
		}
		if sz, err := deviceSizeLinux(f); err == nil {
			src.length = sz
		}
	}

	if src.length == 0 {
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("block: determine size of %q: %w", path, err)
		}
		src.length = uint64(end)
	}

	if src.length == 0 {
		f.Close()
		return nil, fmt.Errorf("block: %q has zero size", path)
	}

	return src, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.file.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, &IoError{Recoverable: true, Err: err}
	}
	return n, err
}

func (s *FileSource) Length() uint64     { return s.length }
func (s *FileSource) SectorSize() uint32 { return s.sectorSize }
func (s *FileSource) Identity() string   { return s.path }
func (s *FileSource) Close() error       { return s.file.Close() }

// sectorSizeLinux issues BLKSSZGET against a block device.
func sectorSizeLinux(f *os.File) (uint32, error) {
	sz, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, err
	}
	return uint32(sz), nil
}

// deviceSizeLinux issues BLKGETSIZE64 against a block device. The ioctl
// writes a 64-bit byte count through the pointer; x/sys/unix has no typed
// helper for it, so the call is made directly as in the original
// disk-probing code this is adapted from.
func deviceSizeLinux(f *os.File) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return size, nil
}

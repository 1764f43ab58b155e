package block

import (
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// MemSource is an in-memory Source over a plain byte slice, used by
// tests to run synthetic disk images without touching a real file.
// ReadAt copies straight from the slice; the bytesextra ReadWriteSeeker
// it also builds is not used on the read path.
type MemSource struct {
	name string
	data []byte
	rws  io.ReadWriteSeeker
	sec  uint32
}

// NewMemSource wraps data (not copied) as a Source named name, reporting
// sectorSize as its geometry (default 512 when zero).
func NewMemSource(name string, data []byte, sectorSize uint32) *MemSource {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	return &MemSource{
		name: name,
		data: data,
		rws:  bytesextra.NewReadWriteSeeker(data),
		sec:  sectorSize,
	}
}

func (s *MemSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (s *MemSource) Length() uint64     { return uint64(len(s.data)) }
func (s *MemSource) SectorSize() uint32 { return s.sec }
func (s *MemSource) Identity() string   { return s.name }
func (s *MemSource) Close() error       { return nil }

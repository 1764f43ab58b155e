package sig

import (
	"bufio"
	"bytes"
	"io"
)

// Reader wraps a bufio.Reader and tracks how many bytes have been
// consumed so format scanners can report a candidate's size as "bytes
// read up to and including the terminating marker", adapted from the
// teacher's internal/format.Reader.
type Reader struct {
	buf *bufio.Reader
	n   uint64
}

func NewReader(r *bufio.Reader) *Reader {
	return &Reader{buf: r}
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.buf.ReadByte()
	if err == nil {
		r.n++
	}
	return b, err
}

func (r *Reader) Read(buf []byte) (int, error) {
	n, err := r.buf.Read(buf)
	if n > 0 {
		r.n += uint64(n)
	}
	return n, err
}

// Discard skips n bytes, advancing the read counter. The underlying
// reader need not support Seek; discarded bytes are simply read and
// dropped.
func (r *Reader) Discard(n int) (int, error) {
	copied, err := io.CopyN(io.Discard, r, int64(n))
	return int(copied), err
}

func (r *Reader) Peek(n int) ([]byte, error) {
	return r.buf.Peek(n)
}

// UnreadByte pushes the last byte read by ReadByte back onto the
// stream; it only undoes a single prior ReadByte call, matching
// bufio.Reader's own restriction.
func (r *Reader) UnreadByte() error {
	if err := r.buf.UnreadByte(); err != nil {
		return err
	}
	r.n--
	return nil
}

func (r *Reader) BytesRead() uint64 { return r.n }
func (r *Reader) BufferSize() int   { return r.buf.Size() }

// SeekToMarker searches for marker within the next maxScan bytes of the
// stream, leaving the reader positioned at the start of the match. It
// is the generalized form of the teacher's SeekAt, used by
// footer-delimited formats (PDF's last "%%EOF", ZIP/Office's
// end-of-central-directory record).
func SeekToMarker(r *Reader, marker []byte, maxScan int) (bool, error) {
	pad := len(marker) - 1
	window := make([]byte, pad+r.BufferSize())

	scanned := 0
	for scanned < maxScan {
		if scanned > 0 {
			copy(window, window[len(window)-pad:])
		}

		peeked, err := r.Peek(len(window) - pad)
		if err != nil && err != io.EOF {
			return false, err
		}

		m := len(peeked)
		copy(window[pad:], peeked)

		if m > 0 {
			var search []byte
			if scanned > 0 {
				search = window[:pad+m]
			} else {
				search = window[pad : pad+m]
			}

			if idx := bytes.Index(search, marker); idx >= 0 {
				discard := idx
				if scanned > 0 {
					discard -= pad
				}
				_, err = r.Discard(discard)
				return true, err
			}
		}

		if err == io.EOF {
			break
		}

		scanned += m
		if _, err := r.Discard(m); err != nil {
			return false, err
		}
	}
	return false, nil
}

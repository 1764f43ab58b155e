// Package fingerprint implements the hasher (spec component C): a
// streaming MD5+SHA256 digest used both to identify duplicate
// candidates and to verify an extracted file against the digest
// computed during carving.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Digest holds both hashes computed over the same byte stream.
type Digest struct {
	MD5    string
	SHA256 string
}

// Hasher accumulates MD5 and SHA256 over a stream of Write calls,
// mirroring the single-pass io.MultiWriter fan-out pattern used
// elsewhere in the corpus for simultaneous hashing and copying.
type Hasher struct {
	md5    hash.Hash
	sha256 hash.Hash
	mw     io.Writer
}

func New() *Hasher {
	h := &Hasher{md5: md5.New(), sha256: sha256.New()}
	h.mw = io.MultiWriter(h.md5, h.sha256)
	return h
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.mw.Write(p)
}

func (h *Hasher) Sum() Digest {
	return Digest{
		MD5:    hex.EncodeToString(h.md5.Sum(nil)),
		SHA256: hex.EncodeToString(h.sha256.Sum(nil)),
	}
}

func (h *Hasher) Reset() {
	h.md5.Reset()
	h.sha256.Reset()
}

// Sum hashes up to limit bytes of r (or the whole stream when limit is
// 0), returning the combined digest and the number of bytes actually
// hashed.
func Sum(r io.Reader, limit int64) (Digest, uint64, error) {
	h := New()
	var n int64
	var err error
	if limit > 0 {
		n, err = io.CopyN(h, r, limit)
		if err == io.EOF {
			err = nil
		}
	} else {
		n, err = io.Copy(h, r)
	}
	if err != nil {
		return Digest{}, 0, err
	}
	return h.Sum(), uint64(n), nil
}

package sig

import (
	"encoding/binary"
	"fmt"
)

var wavSignature = Signature{
	Ext:         "wav",
	Description: "WAVE audio",
	Signatures:  [][]byte{[]byte("RIFF")},
	MinSize:     44,
	ScanFile:    scanWAV,
}

type wavChunkHeader struct {
	ID   [4]byte
	Size uint32
}

// scanWAV walks RIFF chunks until it reaches "data", whose declared
// size determines the file boundary; if the stream is truncated before
// the declared data size is reached, the candidate is reported partial
// rather than rejected outright, adapted from the teacher's ScanWAV.
func scanWAV(r *Reader) (*ScanResult, error) {
	var riff wavChunkHeader
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, err
	}
	if string(riff.ID[:]) != "RIFF" {
		return nil, fmt.Errorf("wav: bad RIFF header")
	}

	var format [4]byte
	if _, err := r.Read(format[:]); err != nil {
		return nil, err
	}
	if string(format[:]) != "WAVE" {
		return nil, fmt.Errorf("wav: not WAVE format")
	}

	sawFmt := false
	for {
		var ch wavChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return nil, err
		}

		switch string(ch.ID[:]) {
		case "fmt ":
			sawFmt = true
			if _, err := r.Discard(int(ch.Size) + int(ch.Size&1)); err != nil {
				return nil, err
			}
		case "data":
			if !sawFmt {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			_, err := r.Discard(int(ch.Size) + int(ch.Size&1))
			total := r.BytesRead()
			if err != nil {
				return &ScanResult{Size: total, Partial: true}, nil
			}
			return &ScanResult{Size: total}, nil
		default:
			if _, err := r.Discard(int(ch.Size) + int(ch.Size&1)); err != nil {
				return nil, err
			}
		}
	}
}

package sig

import (
	"encoding/binary"
	"fmt"
)

var mp3Signature = Signature{
	Ext:         "mp3",
	Description: "MPEG audio (layer III)",
	Signatures:  [][]byte{{0xFF, 0xFB}, {0xFF, 0xFA}, {0xFF, 0xF3}, {0xFF, 0xF2}},
	MinSize:     417,
	Importance:  ImportanceHigh,
	ScanFile:    scanMP3,
}

// mp3BitrateTable holds the V1L3 bitrate table in kbps, indexed by the
// 4-bit bitrate field; 0 means "free", 0xF means "bad".
var mp3BitrateTable = [16]int{
	0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1,
}

var mp3SampleRateTable = [4]int{44100, 48000, 32000, -1}

const mp3MinValidFrames = 2

// scanMP3 has no footer of its own: it walks consecutive frame headers
// computing each frame's length from its bitrate/samplerate fields and
// requires at least mp3MinValidFrames to agree before accepting the
// stream, adapted from the teacher's ScanMP3. A carver should cap the
// confidence of a footer-less format like this one.
func scanMP3(r *Reader) (*ScanResult, error) {
	frames := 0
	var lastGoodOffset uint64

	for {
		hdr, err := r.Peek(4)
		if err != nil || len(hdr) < 4 {
			break
		}

		n := binary.BigEndian.Uint32(hdr)
		if n&0xFFE00000 != 0xFFE00000 {
			break
		}

		versionID := (n >> 19) & 0x3
		layer := (n >> 17) & 0x3
		bitrateIdx := (n >> 12) & 0xF
		sampleIdx := (n >> 10) & 0x3
		padding := (n >> 9) & 0x1

		if versionID == 1 || layer == 0 {
			break
		}

		bitrate := mp3BitrateTable[bitrateIdx]
		sampleRate := mp3SampleRateTable[sampleIdx]
		if bitrate <= 0 || sampleRate <= 0 {
			break
		}

		frameLen := (144*bitrate*1000)/sampleRate + int(padding)
		if frameLen < 4 {
			break
		}

		if _, err := r.Discard(frameLen); err != nil {
			break
		}
		frames++
		lastGoodOffset = r.BytesRead()
	}

	if frames < mp3MinValidFrames {
		return nil, fmt.Errorf("mp3: fewer than %d consecutive valid frames", mp3MinValidFrames)
	}
	return &ScanResult{Size: lastGoodOffset, Partial: true}, nil
}

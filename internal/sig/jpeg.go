package sig

import "fmt"

var jpegSignature = Signature{
	Ext:         "jpg",
	Description: "JPEG image",
	Signatures:  [][]byte{{0xFF, 0xD8, 0xFF}},
	MinSize:     134,
	Importance:  ImportanceHigh,
	ScanFile:    scanJPEG,
}

const (
	sof0Marker = 0xc0
	sof1Marker = 0xc1
	sof2Marker = 0xc2
	dhtMarker  = 0xc4
	rst0Marker = 0xd0
	rst7Marker = 0xd7
	soiMarker  = 0xd8
	eoiMarker  = 0xd9
	sosMarker  = 0xda
	dqtMarker  = 0xdb
	driMarker  = 0xdd
	comMarker  = 0xfe

	app0Marker  = 0xe0
	app14Marker = 0xee
	app15Marker = 0xef
)

// scanJPEG walks JPEG segments looking for the End Of Image marker,
// adapted from the standard library's image/jpeg decode loop but
// stopping as soon as the boundary is known rather than decoding pixel
// data, the way a carver needs to.
func scanJPEG(r *Reader) (*ScanResult, error) {
	var tmp [2]byte

	if _, err := r.Read(tmp[:]); err != nil {
		return nil, err
	}
	if tmp[0] != 0xff || tmp[1] != soiMarker {
		return nil, fmt.Errorf("jpeg: missing SOI marker")
	}

	for {
		if _, err := r.Read(tmp[:]); err != nil {
			return nil, err
		}
		for tmp[0] != 0xff {
			tmp[0] = tmp[1]
			var err error
			tmp[1], err = r.ReadByte()
			if err != nil {
				return nil, err
			}
		}
		marker := tmp[1]
		if marker == 0 {
			continue
		}
		for marker == 0xff {
			var err error
			marker, err = r.ReadByte()
			if err != nil {
				return nil, err
			}
		}
		if marker == eoiMarker {
			return &ScanResult{Size: r.BytesRead()}, nil
		}
		if rst0Marker <= marker && marker <= rst7Marker {
			continue
		}

		if _, err := r.Read(tmp[:]); err != nil {
			return nil, err
		}
		n := int(tmp[0])<<8 + int(tmp[1]) - 2
		if n < 0 {
			return nil, fmt.Errorf("jpeg: short segment length")
		}

		switch {
		case marker == sof0Marker, marker == sof1Marker, marker == sof2Marker,
			marker == dhtMarker, marker == dqtMarker, marker == sosMarker,
			marker == driMarker, marker == app0Marker, marker == app14Marker:
			if _, err := r.Discard(n); err != nil {
				return nil, err
			}
		case app0Marker <= marker && marker <= app15Marker, marker == comMarker:
			if _, err := r.Discard(n); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("jpeg: unknown marker 0x%02x", marker)
		}
	}
}

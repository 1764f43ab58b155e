package manifest

import (
	"io"

	"github.com/gocarina/gocsv"

	"github.com/ostafen/digler/internal/env"
	"github.com/ostafen/digler/pkg/dfxml"
)

// csvRow is the flattened, one-row-per-file projection of Manifest
// used for the CSV export, grounded on the teacher's pkg/dfxml.FileObject
// shape but widened with the hash/score/method fields spec.md §6 adds.
type csvRow struct {
	Filename  string `csv:"filename"`
	Offset    string `csv:"offset"`
	SizeBytes uint64 `csv:"size_bytes"`
	Extension string `csv:"extension"`
	MD5       string `csv:"md5"`
	SHA256    string `csv:"sha256"`
	Score     int    `csv:"validation_score"`
	Partial   bool   `csv:"is_partial"`
	Method    string `csv:"method"`
}

// WriteCSV exports m as a flat CSV, one row per recovered file, using
// gocarina/gocsv the way the rest of the pack (dargueta/disko's sibling
// tooling) uses it for tabular dumps.
func WriteCSV(w io.Writer, m *Manifest) error {
	rows := make([]csvRow, len(m.Files))
	for i, f := range m.Files {
		offset := ""
		if f.Offset != nil {
			offset = uintToString(*f.Offset)
		}
		rows[i] = csvRow{
			Filename:  f.Filename,
			Offset:    offset,
			SizeBytes: f.SizeBytes,
			Extension: f.Extension,
			MD5:       f.MD5,
			SHA256:    f.SHA256,
			Score:     f.ValidationScore,
			Partial:   f.IsPartial,
			Method:    f.Method,
		}
	}
	return gocsv.Marshal(rows, w)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// WriteDFXML exports m as a DFXML report, reusing the teacher's
// pkg/dfxml.DFXMLWriter unchanged: every FileEntry becomes one
// FileObject with a single ByteRun, preserving the cross-tool DFXML
// interop the teacher shipped even though manifest.json is now the
// primary artifact.
func WriteDFXML(w io.Writer, m *Manifest) error {
	dw := dfxml.NewDFXMLWriter(w)
	defer dw.Close()

	err := dw.WriteHeader(dfxml.DFXMLHeader{
		XmlOutput: dfxml.XmlOutputVersion,
		Metadata:  dfxml.DefaultMetadata,
		Creator: dfxml.Creator{
			Package:              env.AppName,
			Version:              env.Version,
			ExecutionEnvironment: dfxml.GetExecEnv(),
		},
		Source: dfxml.Source{
			ImageFilename: m.ScanInfo.SourceID,
			SectorSize:    0,
			ImageSize:     m.Statistics.TotalSizeBytes,
		},
	})
	if err != nil {
		return err
	}

	for _, f := range m.Files {
		offset := uint64(0)
		if f.Offset != nil {
			offset = *f.Offset
		}
		err := dw.WriteFileObject(dfxml.FileObject{
			Filename: f.Filename,
			FileSize: f.SizeBytes,
			ByteRuns: dfxml.ByteRuns{
				Runs: []dfxml.ByteRun{{
					Offset:    offset,
					ImgOffset: offset,
					Length:    f.SizeBytes,
				}},
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

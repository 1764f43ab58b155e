package validate

import "strings"

var imageFormats = map[string]bool{
	"jpg": true, "png": true, "gif": true,
}

func isImageFormat(ext string) bool {
	return imageFormats[ext]
}

// expectedMIME maps a Signature's Ext tag to the MIME prefixes
// net/http.DetectContentType may report for it. ZIP-family container
// formats (docx/xlsx/pptx) sniff as "application/zip" since
// DetectContentType does not look inside the archive.
var expectedMIME = map[string][]string{
	"jpg":    {"image/jpeg"},
	"png":    {"image/png"},
	"gif":    {"image/gif"},
	"bmp":    {"image/bmp"},
	"tif":    {"image/tiff"},
	"pdf":    {"application/pdf"},
	"zip":    {"application/zip"},
	"docx":   {"application/zip"},
	"xlsx":   {"application/zip"},
	"pptx":   {"application/zip"},
	"wav":    {"audio/wave", "audio/wav", "audio/x-wav"},
	"mp3":    {"audio/mpeg"},
	"rar":    {"application/x-rar-compressed", "application/octet-stream"},
	"sqlite": {"application/octet-stream"},
}

func matchesExpectedMIME(ext, mime string) bool {
	for _, prefix := range expectedMIME[ext] {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

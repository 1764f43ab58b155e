package sig

// allSignatures is the full built-in signature set recognized by this
// build. New formats are added here once their ScanFile walker exists.
var allSignatures = []Signature{
	jpegSignature,
	pngSignature,
	pdfSignature,
	zipSignature,
	bmpSignature,
	gifSignature,
	mp3Signature,
	wavSignature,
	auSignature,
	tiffSignature,
	pcxSignature,
	sqliteSignature,
	rarSignature,
	wmaSignature,
}

// DefaultRegistry builds a Registry over every built-in signature,
// mirroring the teacher's top-level registry. Nothing in this module
// calls it; the carver builds its registry from the selected set.
func DefaultRegistry() *Registry {
	return BuildRegistry(allSignatures...)
}

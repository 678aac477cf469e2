package overlay

// Mode is the text presentation strategy of a document.
type Mode int

const (
	// Unresolved means the document has not been checked for OCR yet.
	Unresolved Mode = iota
	// NativeText positions the document's own text over the raster.
	NativeText
	// OcrFallback shows the stored OCR transcript as flowing text.
	OcrFallback
)

func (m Mode) String() string {
	switch m {
	case NativeText:
		return "native"
	case OcrFallback:
		return "ocr"
	}
	return "unresolved"
}

// Transition applies the one-way document rule: an unresolved document
// commits to OcrFallback when it has OCR pages and to NativeText otherwise.
// Resolved modes never change.
func Transition(from Mode, hasOCR bool) Mode {
	if from != Unresolved {
		return from
	}
	if hasOCR {
		return OcrFallback
	}
	return NativeText
}

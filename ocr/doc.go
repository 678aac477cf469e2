// Package ocr plugs OCR engines (Tesseract by default) into the viewer and
// stores the resulting page transcripts. The overlay resolver reads
// transcripts through Store; Transcriber fills it for scanned documents.
package ocr

// Package ocr turns a treadmill console photo into recognized text and
// extracts the elapsed-time and distance fields from it. Two engines are
// available: the Google Vision REST endpoint and a local Tesseract pass.
package ocr

import "context"

// NoTextFound is returned as the extracted text when the engine produced no
// annotations at all.
const NoTextFound = "No text found"

// Engine recognizes text in the image at path. One call per image; results
// are not cached.
type Engine interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

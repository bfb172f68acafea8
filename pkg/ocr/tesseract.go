package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine performs local OCR via Tesseract. It is the offline
// alternative to the Vision endpoint and needs the tesseract shared library
// installed. Treadmill consoles show seven-segment style digits, so the
// image is preprocessed and the character set restricted before the pass.
type TesseractEngine struct {
	// Whitelist restricts the recognized character set. Empty means the
	// console default (digits plus the time/distance separators).
	Whitelist string
}

const consoleWhitelist = "0123456789:.,/ "

// ExtractText runs a preprocessed Tesseract pass over the image at path.
func (t *TesseractEngine) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmp, cleanup, err := prepareConsoleImage(path)
	if err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}
	defer cleanup()

	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("eng")
	wl := t.Whitelist
	if wl == "" {
		wl = consoleWhitelist
	}
	_ = client.SetWhitelist(wl)
	if err := client.SetImage(tmp); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NoTextFound, nil
	}
	return text, nil
}

// removeTemp is split out so cleanup closures stay trivial.
func removeTemp(path string) func() {
	return func() { _ = os.Remove(path) }
}

package ocr

import (
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// prepareConsoleImage writes a cleaned-up copy of the photo for the local
// Tesseract pass: grayscale, contrast and sharpen to lift the console digits
// off the backlit display, upscale when the photo is small. If the temp copy
// cannot be produced the original path is used unchanged.
func prepareConsoleImage(path string) (string, func(), error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", nil, err
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1200, imaging.Lanczos)
	}
	bin := binarize(gray, 200)

	tmpFile, err := os.CreateTemp("", "console-*.png")
	if err != nil {
		return path, func() {}, nil
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	if err := imaging.Save(bin, tmp); err != nil {
		_ = os.Remove(tmp)
		return path, func() {}, nil
	}
	return tmp, removeTemp(tmp), nil
}

// binarize performs a simple global threshold on a grayscale image.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			gray := uint8((r + g + bb) / 3 >> 8)
			var v uint8 = 255
			if gray <= threshold {
				v = 0
			}
			out.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// Package exifmeta extracts the capture timestamp embedded in a photo and
// reformats it the way the Strava activity API expects it.
package exifmeta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var (
	// ErrNoMetadata means the image carries no readable EXIF block at all.
	ErrNoMetadata = errors.New("no EXIF data found in image")
	// ErrNoDateTime means EXIF exists but the DateTimeOriginal tag is absent.
	ErrNoDateTime = errors.New("no DateTimeOriginal tag found in EXIF data")
)

// exifLayout is the native EXIF datetime form.
const exifLayout = "2006:01:02 15:04:05"

// CaptureTime returns the DateTimeOriginal timestamp of the image at path.
func CaptureTime(path string) (time.Time, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return time.Time{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, ErrNoDateTime
	}
	raw, err := tag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("read DateTimeOriginal: %w", err)
	}
	return ParseExifDateTime(raw)
}

// ParseExifDateTime parses the EXIF-native "YYYY:MM:DD HH:MM:SS" form.
func ParseExifDateTime(raw string) (time.Time, error) {
	t, err := time.Parse(exifLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse EXIF datetime %q: %w", raw, err)
	}
	return t, nil
}

// FormatStravaLocal renders t as ISO-8601 with a trailing "Z". The camera's
// actual zone is unknown, so the wall-clock value is labelled UTC as-is; the
// resulting start time can be off by the zone offset.
func FormatStravaLocal(t time.Time) string {
	return t.Format("2006-01-02T15:04:05") + "Z"
}

// CaptureTimeStravaLocal combines CaptureTime and FormatStravaLocal.
func CaptureTimeStravaLocal(path string) (string, error) {
	t, err := CaptureTime(path)
	if err != nil {
		return "", err
	}
	return FormatStravaLocal(t), nil
}

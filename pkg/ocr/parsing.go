package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinels returned when a field cannot be located in the recognized text.
const (
	TimeNotFound     = "Time not found"
	DistanceNotFound = "Distance not found"
)

var (
	timeRE     = regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
	distanceRE = regexp.MustCompile(`(\d{1,2}\.\d{2})`)
)

// Fields holds the two console readings recovered from OCR text.
type Fields struct {
	Time     string // "MM:SS" or TimeNotFound
	Distance string // "D.DD" or DistanceNotFound
}

// Complete reports whether both fields were located.
func (f Fields) Complete() bool {
	return f.Time != TimeNotFound && f.Distance != DistanceNotFound
}

// ParseFields scans text for the first time-shaped and distance-shaped
// substrings. Best effort: any unrelated number with the same shape matches
// too; the console layout is not considered.
func ParseFields(text string) Fields {
	out := Fields{Time: TimeNotFound, Distance: DistanceNotFound}
	if m := timeRE.FindString(text); m != "" {
		out.Time = m
	}
	if m := distanceRE.FindString(text); m != "" {
		out.Distance = m
	}
	return out
}

// ConvertTimeToSeconds converts "MM:SS" to whole seconds.
func ConvertTimeToSeconds(t string) (int, error) {
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", t)
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed minutes in %q: %w", t, err)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed seconds in %q: %w", t, err)
	}
	return minutes*60 + seconds, nil
}

// DistanceMeters converts a console km reading like "2.93" to meters.
func DistanceMeters(d string) (float64, error) {
	km, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed distance %q: %w", d, err)
	}
	return km * 1000, nil
}

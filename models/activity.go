package models

// ParsedActivity carries the fields recovered from one treadmill console photo.
// It is transient: built per image, consumed by the uploader, never persisted.
type ParsedActivity struct {
	Time        string // "MM:SS" elapsed time, or the parser's not-found sentinel
	Distance    string // "D.DD" distance in km, or the parser's not-found sentinel
	ImagePath   string // source photo
	CaptureTime string // ISO-8601 with trailing "Z"; empty until extracted from the photo
	Title       string
	Description string
}

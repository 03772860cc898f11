// Package normalize holds the pure conversion helpers shared by the indexers:
// amount and timestamp parsing, reputation scaling and string sanitization.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TimeFormat is the layout of block and operation timestamps
const TimeFormat = "2006-01-02T15:04:05"

// DefaultImgURLSize is the longest image URL SafeImgURL accepts
const DefaultImgURLSize = 1024

// FormatError reports a malformed numeric or date string
type FormatError struct {
	Kind  string
	Input string
	Err   error
}

// Error implements the error interface
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Input)
}

// Unwrap returns the underlying parse error
func (e *FormatError) Unwrap() error {
	return e.Err
}

// ParseAmount parses an amount string like "10.000 SBD" and returns its magnitude.
// The symbol is ignored.
func ParseAmount(s string) (float64, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return 0, &FormatError{Kind: "amount", Input: s}
	}

	amount, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, &FormatError{Kind: "amount", Input: s, Err: err}
	}

	return amount, nil
}

// ParseTime parses a chain timestamp, always in UTC
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, &FormatError{Kind: "timestamp", Input: s, Err: err}
	}
	return t, nil
}

// ReputationScore converts a raw reputation into the log-scaled display score.
// A raw value of 0 maps to 25; each order of magnitude above 1e9 adds 9 points.
func ReputationScore(raw int64) float64 {
	if raw == 0 {
		return 25
	}

	digits := strconv.FormatInt(raw, 10)
	sign := 1.0
	if digits[0] == '-' {
		sign = -1
		digits = digits[1:]
	}

	lead := digits
	if len(lead) > 4 {
		lead = lead[:4]
	}
	leading, _ := strconv.Atoi(lead)

	log := math.Log10(float64(leading)) + 0.00000001
	magnitude := float64(len(digits)-1) + (log - math.Trunc(log))

	out := math.Max(magnitude-9, 0) * sign
	out = out*9 + 25
	return math.Round(out*100) / 100
}

// Truncate trims s and, if it is still longer than maxLen characters,
// cuts it to maxLen-3 characters followed by "...". A non-positive maxLen
// yields "".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

// SafeImgURL returns the trimmed url if it is shorter than maxSize and uses an
// http(s) scheme.
func SafeImgURL(v interface{}, maxSize int) (string, bool) {
	url, ok := v.(string)
	if !ok {
		return "", false
	}
	url = strings.TrimSpace(url)
	if url == "" || len(url) >= maxSize || !strings.HasPrefix(url, "http") {
		return "", false
	}
	return url, true
}

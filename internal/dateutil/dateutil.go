// Package dateutil resolves "auto" date values in document metadata.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateFormat indicates an invalid date format string.
var ErrInvalidDateFormat = errors.New("invalid date format")

// MaxDateFormatLength limits format string length.
const MaxDateFormatLength = 50

// DefaultDateFormat is used for a bare "auto".
const DefaultDateFormat = "YYYY-MM-DD"

// dateTokens maps format tokens to Go layout components, longest first so
// matching is greedy.
var dateTokens = []struct {
	token string
	goFmt string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"M", "1"},
	{"D", "2"},
}

// Presets are named formats accepted after "auto:".
var Presets = map[string]string{
	"iso":      "YYYY-MM-DD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

// Layout converts a token format (YYYY, YY, MMMM, MMM, MM, M, DD, D) to a
// Go time layout. Text in brackets is copied literally: "[Week of] D MMM".
// Other characters are kept as they are.
func Layout(format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("%w: empty format", ErrInvalidDateFormat)
	}
	if len(format) > MaxDateFormatLength {
		return "", fmt.Errorf("%w: format exceeds %d characters", ErrInvalidDateFormat, MaxDateFormatLength)
	}

	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			end := strings.IndexByte(format[i+1:], ']')
			if end == -1 {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, i)
			}
			b.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.goFmt)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String(), nil
}

// IsAuto reports whether value asks for a generated date.
func IsAuto(value string) bool {
	return strings.HasPrefix(strings.ToLower(value), "auto")
}

// Resolve expands "auto" (today as YYYY-MM-DD), "auto:FORMAT" and
// "auto:PRESET" using now. Other values are returned unchanged.
func Resolve(value string, now time.Time) (string, error) {
	if !IsAuto(value) {
		return value, nil
	}
	layout, err := autoLayout(value)
	if err != nil {
		return "", err
	}
	return now.Format(layout), nil
}

// Validate checks the syntax of an "auto" value without resolving it.
func Validate(value string) error {
	if !IsAuto(value) {
		return nil
	}
	_, err := autoLayout(value)
	return err
}

func autoLayout(value string) (string, error) {
	if strings.EqualFold(value, "auto") {
		return Layout(DefaultDateFormat)
	}
	if !strings.HasPrefix(strings.ToLower(value), "auto:") {
		return "", fmt.Errorf("%w: %q, use \"auto\" or \"auto:FORMAT\"", ErrInvalidDateFormat, value)
	}

	format := value[len("auto:"):]
	if preset, ok := Presets[strings.ToLower(format)]; ok {
		format = preset
	}
	return Layout(format)
}

// Package rollno canonicalizes roll numbers so string and integer spellings of
// the same identity share one key.
package rollno

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmpty is returned for blank roll numbers.
	ErrEmpty = errors.New("roll number is empty")
	// ErrUnsupported is returned for values that have no roll number spelling.
	ErrUnsupported = errors.New("unsupported roll number type")
	// ErrAmbiguous is returned when a key is absent but a differently padded
	// spelling of it ("7" vs "007") exists.
	ErrAmbiguous = errors.New("roll number matches only under a different spelling")
)

// spreadsheet exports turn 101 into "101.0"
var integralFloat = regexp.MustCompile(`^([+-]?\d+)\.0+$`)

// Canonical returns the key form of v. Strings are NFKC folded (full-width
// digits become ASCII) and trimmed; integral floats lose their ".0".
func Canonical(v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int64:
		s = strconv.FormatInt(x, 10)
	case uint:
		s = strconv.FormatUint(uint64(x), 10)
	case uint32:
		s = strconv.FormatUint(uint64(x), 10)
	case uint64:
		s = strconv.FormatUint(x, 10)
	case float32:
		s = formatFloat(float64(x))
	case float64:
		s = formatFloat(x)
	case fmt.Stringer:
		s = x.String()
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupported, v)
	}

	s = strings.TrimSpace(norm.NFKC.String(s))
	if m := integralFloat.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// MustCanonical is Canonical for literals known to be valid.
func MustCanonical(v any) string {
	s, err := Canonical(v)
	if err != nil {
		panic(err)
	}
	return s
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Loose strips leading zeros from numeric keys. It is only used to detect
// ambiguity, never as a key.
func Loose(key string) string {
	if key == "" {
		return key
	}
	if _, err := strconv.ParseUint(key, 10, 64); err != nil {
		return key
	}
	t := strings.TrimLeft(key, "0")
	if t == "" {
		return "0"
	}
	return t
}

// Ambiguous reports whether a and b differ as keys but collide under Loose.
func Ambiguous(a, b string) bool {
	return a != b && Loose(a) == Loose(b)
}

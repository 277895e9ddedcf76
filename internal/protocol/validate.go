package protocol

import (
	"encoding/json"
	"math"
	"regexp"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Canvas bounds and field limits for launch events.
const (
	MinCoordinate  = -100.0
	MaxCoordinate  = 5000.0
	MaxColorLength = 30
	MaxNameLength  = 20
)

// ErrInvalidPayload is matched by every validation error.
var ErrInvalidPayload = errors.New("invalid payload")

// Validation failures. Each one satisfies errors.Is(err, ErrInvalidPayload).
var (
	ErrMalformed     = &payloadError{"malformed"}
	ErrMissingField  = &payloadError{"missing field"}
	ErrBadCoordinate = &payloadError{"bad coordinate"}
	ErrBadColor      = &payloadError{"bad color"}
	ErrBadName       = &payloadError{"bad name"}
	ErrBadEncoding   = &payloadError{"invalid utf-8"}
)

type payloadError struct {
	reason string
}

func (e *payloadError) Error() string {
	return "invalid payload: " + e.reason
}

func (e *payloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// Launch is a validated launch event.
type Launch struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Name  *string `json:"name,omitempty"`
}

const (
	cssNumber = `[+-]?(?:\d+(?:\.\d+)?|\.\d+)`
	cssHue    = cssNumber + `(?:deg)?`
	cssPct    = cssNumber + `%`
	cssAlpha  = cssNumber + `%?`
	cssRGB    = cssNumber + `%?`
)

var colorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`),
	regexp.MustCompile(`^[A-Za-z]+$`),
	regexp.MustCompile(`^hsl\(\s*` + cssHue + `\s*,\s*` + cssPct + `\s*,\s*` + cssPct + `\s*\)$`),
	regexp.MustCompile(`^hsla\(\s*` + cssHue + `\s*,\s*` + cssPct + `\s*,\s*` + cssPct + `\s*,\s*` + cssAlpha + `\s*\)$`),
	regexp.MustCompile(`^rgb\(\s*` + cssRGB + `\s*,\s*` + cssRGB + `\s*,\s*` + cssRGB + `\s*\)$`),
	regexp.MustCompile(`^rgba\(\s*` + cssRGB + `\s*,\s*` + cssRGB + `\s*,\s*` + cssRGB + `\s*,\s*` + cssAlpha + `\s*\)$`),
}

// ValidColor reports whether color is an accepted CSS color: #rgb, #rrggbb, a
// bare alphabetic name, or an hsl(), hsla(), rgb() or rgba() expression.
func ValidColor(color string) bool {
	if jsLength(color) > MaxColorLength {
		return false
	}
	for _, re := range colorPatterns {
		if re.MatchString(color) {
			return true
		}
	}
	return false
}

// ValidateLaunch checks a raw launch frame before it is relayed. The frame is
// forwarded byte for byte, so it must be valid UTF-8 as a whole: browsers
// drop connections that receive a text frame that is not.
func ValidateLaunch(raw []byte) (Launch, error) {
	if !utf8.Valid(raw) {
		return Launch{}, errors.WithStack(ErrBadEncoding)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Launch{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if fields == nil {
		return Launch{}, errors.Wrap(ErrMalformed, "frame is not an object")
	}

	for _, key := range []string{"x", "y", "color"} {
		if _, ok := fields[key]; !ok {
			return Launch{}, errors.Wrapf(ErrMissingField, "%q", key)
		}
	}

	var l Launch
	var ok bool
	if l.X, ok = coordinate(fields["x"]); !ok {
		return Launch{}, errors.Wrapf(ErrBadCoordinate, "x=%s", fields["x"])
	}
	if l.Y, ok = coordinate(fields["y"]); !ok {
		return Launch{}, errors.Wrapf(ErrBadCoordinate, "y=%s", fields["y"])
	}

	if l.Color, ok = stringField(fields["color"]); !ok || !ValidColor(l.Color) {
		return Launch{}, errors.Wrapf(ErrBadColor, "color=%s", fields["color"])
	}

	if raw, present := fields["name"]; present {
		name, ok := stringField(raw)
		if !ok || jsLength(name) > MaxNameLength {
			return Launch{}, errors.Wrapf(ErrBadName, "name=%s", raw)
		}
		l.Name = &name
	}

	return l, nil
}

func coordinate(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || raw[0] == 'n' {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, v >= MinCoordinate && v <= MaxCoordinate
}

// jsLength counts UTF-16 code units, the unit browsers use for String.length.
func jsLength(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

package filing

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// MinPlausible and MaxPlausible bound accepted monetary values ($1K to $10T).
	MinPlausible = 1_000.0
	MaxPlausible = 10_000_000_000_000.0

	// ScaleWindow is how far either side of a matched number the parser looks
	// for an "in millions" style caption.
	ScaleWindow = 100
)

var numericNoise = regexp.MustCompile(`[^\d.\-]`)

// ValueParser pulls one monetary figure out of free text.
type ValueParser struct {
	Min    float64
	Max    float64
	Window int
}

func NewValueParser() *ValueParser {
	return &ValueParser{Min: MinPlausible, Max: MaxPlausible, Window: ScaleWindow}
}

// FindValue tries each pattern in order and every match of each pattern, and
// returns the first candidate inside the plausibility band. Group 1 is the
// number; an optional group 2 is an explicit scale word. Without a captured
// scale word the text around the number decides whether it is in millions or
// billions.
func (p *ValueParser) FindValue(text string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			raw := text[m[2]:m[3]]
			value, err := parseNumber(raw)
			if err != nil {
				continue
			}

			scale := ""
			if len(m) >= 6 && m[4] >= 0 {
				scale = text[m[4]:m[5]]
			}
			if scale != "" {
				value *= scaleMultiplier(scale)
			} else {
				value *= p.windowMultiplier(text, m[2], m[3])
			}

			if p.plausible(value) {
				return value, true
			}
		}
	}
	return 0, false
}

func (p *ValueParser) plausible(v float64) bool {
	if v < 0 {
		v = -v
	}
	return v >= p.Min && v <= p.Max
}

func (p *ValueParser) windowMultiplier(text string, start, end int) float64 {
	from := start - p.Window
	if from < 0 {
		from = 0
	}
	to := end + p.Window
	if to > len(text) {
		to = len(text)
	}
	window := strings.ToLower(text[from:to])
	switch {
	case strings.Contains(window, "million"):
		return 1_000_000
	case strings.Contains(window, "billion"):
		return 1_000_000_000
	}
	return 1
}

func scaleMultiplier(word string) float64 {
	w := strings.ToLower(word)
	switch {
	case strings.Contains(w, "billion"):
		return 1_000_000_000
	case strings.Contains(w, "million"):
		return 1_000_000
	case strings.Contains(w, "thousand"):
		return 1_000
	}
	return 1
}

func parseNumber(raw string) (float64, error) {
	clean := numericNoise.ReplaceAllString(strings.ReplaceAll(raw, ",", ""), "")
	return strconv.ParseFloat(clean, 64)
}

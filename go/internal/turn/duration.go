package turn

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// MaxClockSeconds is the largest budget a slot can hold; the stores keep budgets as int4.
const MaxClockSeconds = math.MaxInt32

// FormatClock renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatClock(seconds int) string {
	seconds = max(0, seconds)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ParseClock accepts "ss", "m:ss" or "h:mm:ss" and returns whole seconds.
// Minutes and seconds after the first field must be below 60.
func ParseClock(input string) (int, error) {
	t := strings.TrimSpace(input)
	if t == "" {
		return 0, Invalid("duration", "empty")
	}

	var parts []int
	for _, p := range strings.Split(t, ":") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, Invalid("duration", "%q is not a clock value", input)
		}
		parts = append(parts, n)
	}

	switch len(parts) {
	case 1:
	case 2:
		if parts[1] >= 60 {
			return 0, Invalid("duration", "%q: seconds must be below 60", input)
		}
	case 3:
		if parts[1] >= 60 || parts[2] >= 60 {
			return 0, Invalid("duration", "%q: minutes and seconds must be below 60", input)
		}
	default:
		return 0, Invalid("duration", "%q is not a clock value", input)
	}

	total := 0
	for i, p := range parts {
		if i > 0 {
			if total > (MaxClockSeconds-p)/60 {
				return 0, Invalid("duration", "%q exceeds %s", input, FormatClock(MaxClockSeconds))
			}
			total *= 60
		}
		if p > MaxClockSeconds-total {
			return 0, Invalid("duration", "%q exceeds %s", input, FormatClock(MaxClockSeconds))
		}
		total += p
	}
	return total, nil
}

// NormalizeColor lower-cases a #rrggbb color or rejects it.
func NormalizeColor(c string) (string, error) {
	s := strings.TrimSpace(c)
	if !hexColor.MatchString(s) {
		return "", Invalid("color", "%q is not a #rrggbb color", c)
	}
	return strings.ToLower(s), nil
}

// NormalizeLabel trims a label, falling back to J<slot> when empty.
func NormalizeLabel(slot int, label string) (string, error) {
	s := strings.TrimSpace(label)
	if s == "" {
		return DefaultLabel(slot), nil
	}
	if len([]rune(s)) > MaxLabelLength {
		return "", Invalid("label", "longer than %d characters", MaxLabelLength)
	}
	return s, nil
}

// MaxLabelLength caps slot labels.
const MaxLabelLength = 32

// DefaultLabel is the label a slot gets at room creation.
func DefaultLabel(slot int) string {
	return fmt.Sprintf("J%d", slot)
}

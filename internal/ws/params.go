package ws

import (
	"math"
	"strconv"
	"strings"

	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
)

// malformed marks a value that is not a non-negative integer. The engine
// rejects negative counts and indices.
const malformed = -1

// parseCount reads a loosely typed JSON number. Missing and empty values
// count as zero; numeric strings are accepted.
func parseCount(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return wholeNumber(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return malformed
		}
		return wholeNumber(f)
	default:
		return malformed
	}
}

// countCap is above every section's dice limit and every dice list length.
// Larger whole numbers are clamped to it so they still fail as out of range.
const countCap = 1000

func wholeNumber(f float64) int {
	if math.IsNaN(f) || f < 0 || f != math.Trunc(f) {
		return malformed
	}
	if f > countCap {
		return countCap
	}
	return int(f)
}

func parseCounts(raw map[string]any) engine.DiceCounts {
	counts := make(engine.DiceCounts, len(dice.CountColors))
	for _, c := range dice.CountColors {
		counts[c] = parseCount(raw[string(c)])
	}
	return counts
}

// looseString stringifies a join field. Numbers and bools print as
// themselves; objects, arrays and null are empty.
func looseString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// parseIndices treats anything but a JSON array as an empty selection.
func parseIndices(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, len(list))
	for i, raw := range list {
		switch x := raw.(type) {
		case float64:
			out[i] = wholeNumber(x)
		case string:
			if strings.TrimSpace(x) == "" {
				out[i] = malformed
			} else {
				out[i] = parseCount(x)
			}
		default:
			out[i] = malformed
		}
	}
	return out
}

package metadata

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var digitRun = regexp.MustCompile(`\d+`)

// Score rates a passage in [0, 1]. Label:value structure, substance, figures
// and complete sentences raise it; very short or fragmented passages lower it.
func Score(content string) float64 {
	score := 0.0
	if strings.Contains(content, ":") {
		score += 0.3
	}
	if len(strings.Fields(content)) > 20 {
		score += 0.2
	}
	if digitRun.MatchString(content) {
		score += 0.2
	}
	terminators := strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	score += min(0.3, 0.1*float64(terminators))

	size := utf8.RuneCountInString(content)
	if size < 50 {
		score -= 0.2
	}
	if newlines := strings.Count(content, "\n"); newlines*20 > size {
		score -= 0.1
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

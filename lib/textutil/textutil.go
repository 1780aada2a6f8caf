package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// CollapseSpace trims s and turns every run of whitespace into one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// MatchCode returns the first code that appears in text, compared
// case-insensitively as a substring.
func MatchCode(text string, codes []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(code)) {
			return code, true
		}
	}
	return "", false
}

// ClosestName returns the candidate most similar to text by Jaro-Winkler
// distance over normalized names, when that similarity reaches threshold.
func ClosestName(text string, candidates []string, threshold float64) (string, bool) {
	needle := NormalizeName(text)
	if needle == "" {
		return "", false
	}

	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(needle, NormalizeName(c), false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	if best == "" || bestScore < threshold {
		return "", false
	}
	return best, true
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Package textnorm cleans raw OCR or pasted text before extraction.
// It removes degenerate noise blocks while preserving line structure, since
// question markers are detected at line starts downstream.
package textnorm

import (
	"strings"
	"unicode"
)

// Signal characters beyond letters and digits that carry meaning in student
// work: operators, relations, set notation, common math symbols.
const mathSignal = "=+-*/^(){}[]|<>≠≤≥∈∉ℝℤ√±×÷.,:;"

// Clean normalizes raw recognized text: trims each line, drops lines that are
// pure recognition garbage, collapses runs of blank lines, and strips
// low-signal leading/trailing regions.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))

	blank := 0
	for _, line := range lines {
		line = collapseSpaces(strings.TrimSpace(line))
		if line == "" {
			blank++
			if blank <= 1 && len(out) > 0 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		if isNoise(line) {
			continue
		}
		out = append(out, line)
	}

	// Trim trailing blank left by the collapse above.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isNoise reports whether a line is a degenerate OCR artifact: long enough to
// matter, and almost entirely characters with no textual or mathematical
// signal.
func isNoise(line string) bool {
	runes := []rune(line)
	if len(runes) < 4 {
		return false
	}
	signal := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) ||
			strings.ContainsRune(mathSignal, r) || r == ' ' {
			signal++
		}
	}
	return float64(signal)/float64(len(runes)) < 0.3
}

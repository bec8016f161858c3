package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// The deterministic final pass: no oracle, pure line scanning. It exists so
// the cascade always terminates with a best-effort result even with no
// credentials configured.

var (
	// "Question 1:", "Q9a.", "3)", "12." — a question-number token with an
	// optional lowercase sub-part letter, followed by a separator.
	questionMarker = regexp.MustCompile(`^(?:[Qq](?:uestion)?\s*)?(\d{1,3})([a-z])?\s*[)\].:]\s*(.*)$`)

	// "a. domain of (f/g)(x):" — a bare sub-part marker under the current
	// question.
	subpartMarker = regexp.MustCompile(`^([a-z])\s*[)\].:]\s+(.*)$`)

	setNotation = regexp.MustCompile(`\{[^{}]*\}`)
	inequality  = regexp.MustCompile(`[A-Za-z](?:\([A-Za-z]\))?\s*(?:≠|!=|not\s+equal(?:\s+to)?)\s*.+`)
	varEquals   = regexp.MustCompile(`^[A-Za-z]\s*=\s*(.+)$`)
)

type heuristicStrategy struct{}

func (heuristicStrategy) Name() string { return "heuristic" }

func (heuristicStrategy) Extract(_ context.Context, text string) (QA, error) {
	return HeuristicExtract(text), nil
}

// HeuristicExtract scans line-by-line for question markers, accumulates work
// lines per question, and derives each final answer from the last work line.
// It is deterministic: same input, same output.
func HeuristicExtract(text string) QA {
	qa := emptyQA()

	var (
		key      string
		qtext    string
		work     []string
		curNum   int
		haveCur  bool
		nextPart byte
	)

	flush := func() {
		if !haveCur {
			return
		}
		question := qtext
		if question == "" && len(work) > 0 {
			question = work[0]
		}
		qa.Questions[key] = question

		// The answer lives in the last work line; with no work at all, the
		// marker line itself may carry the whole solution.
		source := qtext
		if len(work) > 0 {
			source = work[len(work)-1]
		}
		if ans := deriveAnswer(source); ans != "" {
			qa.Answers[key] = ans
		}
		work = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := questionMarker.FindStringSubmatch(line); m != nil {
			flush()
			n, _ := strconv.Atoi(m[1])
			key = m[1] + m[2]
			qtext = strings.TrimSpace(m[3])
			curNum = n
			haveCur = true
			nextPart = 'a'
			if m[2] != "" {
				nextPart = m[2][0] + 1
			}
			continue
		}

		// A sub-part only counts if it is the next letter in sequence;
		// otherwise a labeled work step like "c: apply chain rule" would
		// open a phantom sub-part.
		if haveCur {
			if m := subpartMarker.FindStringSubmatch(line); m != nil && m[1][0] == nextPart {
				flush()
				key = strconv.Itoa(curNum) + m[1]
				qtext = strings.TrimSpace(m[2])
				nextPart++
				continue
			}
		}

		if haveCur {
			work = append(work, line)
		}
	}
	flush()

	return sanitize(qa)
}

// deriveAnswer extracts a final answer from one line of work, trying in
// order: set-notation braces, an inequality/constraint, the value after the
// final equality sign, then a single-variable assignment.
func deriveAnswer(line string) string {
	line = cleanupAnswer(line)
	if line == "" {
		return ""
	}

	if matches := setNotation.FindAllString(line, -1); len(matches) > 0 {
		return cleanupAnswer(matches[len(matches)-1])
	}

	if m := inequality.FindString(line); m != "" {
		return cleanupAnswer(m)
	}

	if tail := afterFinalEquals(line); tail != "" {
		return cleanupAnswer(tail)
	}

	if m := varEquals.FindStringSubmatch(line); m != nil {
		return cleanupAnswer(m[1])
	}

	return ""
}

// afterFinalEquals returns the text after the last bare '=' in the line,
// skipping compound relations (!=, <=, >=).
func afterFinalEquals(line string) string {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] != '=' {
			continue
		}
		if i > 0 && (line[i-1] == '!' || line[i-1] == '<' || line[i-1] == '>' || line[i-1] == '=') {
			continue
		}
		if i+1 < len(line) && line[i+1] == '=' {
			continue
		}
		tail := strings.TrimSpace(line[i+1:])
		if tail != "" {
			return tail
		}
		return ""
	}
	return ""
}

func cleanupAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "✓✔")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;")
	return strings.TrimSpace(s)
}

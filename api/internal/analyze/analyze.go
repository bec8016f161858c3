// Package analyze produces a per-mistake breakdown of a graded test:
// what went wrong on each question, why, how to fix it, and which topic
// area the student should drill.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

type Mistake struct {
	QuestionNumber int    `json:"question_number"`
	Description    string `json:"mistake_description"`
	WhyWrong       string `json:"why_wrong"`
	HowToFix       string `json:"how_to_fix"`
	WeakArea       string `json:"weak_area"`
	UserAnswer     string `json:"user_answer,omitempty"`
	CorrectAnswer  string `json:"correct_answer,omitempty"`
}

type Report struct {
	Mistakes []Mistake `json:"mistakes"`
	Summary  string    `json:"summary"`
}

// responseSchema rejects shapes the model occasionally produces instead of
// the requested one (a bare array, mistakes as a string). question_number
// is left loose on purpose: non-integer entries are filtered after decode
// rather than failing the whole report.
const responseSchema = `{
    "type": "object",
    "properties": {
        "mistakes": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "mistake_description": {"type": "string"},
                    "why_wrong": {"type": "string"},
                    "how_to_fix": {"type": "string"},
                    "weak_area": {"type": "string"}
                }
            }
        },
        "summary": {"type": "string"}
    },
    "required": ["mistakes"]
}`

var compiledSchema = jsonschema.MustCompileString("analyze.json", responseSchema)

type Analyzer struct {
	orc oracle.Client
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger, orc oracle.Client) *Analyzer {
	return &Analyzer{orc: orc, log: log}
}

const analyzeSystem = `You are an experienced math tutor who explains mistakes clearly and kindly. Always return valid JSON.`

func buildPrompt(questions, userAnswers, correctAnswers map[string]string) string {
	var b strings.Builder
	b.WriteString("Analyze this student's test results and identify their mistakes.\n\n")
	// Every submitted answer must reach the oracle, including ones whose
	// question text is unknown (clients may send answers alone).
	for _, key := range extract.SortKeys(unionKeys(userAnswers, questions)) {
		qtext := questions[key]
		if strings.TrimSpace(qtext) == "" {
			qtext = "(question text unavailable)"
		}
		fmt.Fprintf(&b, "Question %s: %s\n", key, qtext)
		fmt.Fprintf(&b, "Student's answer: %s\n", orBlank(userAnswers[key]))
		if correct := correctAnswers[key]; correct != "" {
			fmt.Fprintf(&b, "Correct answer: %s\n", correct)
		}
		b.WriteString("\n")
	}
	b.WriteString(`For each INCORRECT answer, explain the mistake. Return JSON:
{
    "mistakes": [
        {
            "question_number": 1,
            "mistake_description": "what the student did wrong",
            "why_wrong": "why this approach fails",
            "how_to_fix": "how to solve it correctly",
            "weak_area": "the topic to practice (e.g. 'linear equations')"
        }
    ],
    "summary": "overall assessment of the student's understanding"
}`)
	return b.String()
}

// AnalyzeMistakes builds the tutoring report. An empty answer set never
// touches the oracle: the report just explains that nothing was readable.
// Oracle failure or timeout degrades to an apologetic summary with no
// mistakes rather than an error.
func (a *Analyzer) AnalyzeMistakes(ctx context.Context, questions, userAnswers, correctAnswers map[string]string, timeout time.Duration) Report {
	if len(userAnswers) == 0 {
		return Report{
			Mistakes: []Mistake{},
			Summary:  "No answers could be read from the submitted work, so there is nothing to grade yet. Try re-uploading a clearer photo, or type the answers in directly.",
		}
	}
	if a.orc == nil || !a.orc.Available() {
		return Report{Mistakes: []Mistake{}, Summary: "Mistake analysis is temporarily unavailable."}
	}

	sub, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.orc.Complete(sub, analyzeSystem, buildPrompt(questions, userAnswers, correctAnswers), oracle.Options{
		Temperature: 0.3,
		JSON:        true,
	})
	if err != nil {
		a.log.Warnw("mistake analysis failed", "err", err)
		return Report{Mistakes: []Mistake{}, Summary: "Mistake analysis could not be completed, please try again."}
	}
	return a.decode(out, userAnswers, correctAnswers)
}

func (a *Analyzer) decode(out string, userAnswers, correctAnswers map[string]string) Report {
	raw := util.StripCodeFences(out)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		if inner := util.ExtractJSONObject(raw); inner != "" && json.Unmarshal([]byte(inner), &doc) == nil {
			raw = inner
		} else {
			// Model answered in prose; better to show it than to drop it.
			return Report{Mistakes: []Mistake{}, Summary: strings.TrimSpace(raw)}
		}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		a.log.Warnw("analysis response failed schema validation", "err", err)
		return Report{Mistakes: []Mistake{}, Summary: strings.TrimSpace(raw)}
	}

	var parsed struct {
		Mistakes []struct {
			QuestionNumber json.RawMessage `json:"question_number"`
			Description    string          `json:"mistake_description"`
			WhyWrong       string          `json:"why_wrong"`
			HowToFix       string          `json:"how_to_fix"`
			WeakArea       string          `json:"weak_area"`
		} `json:"mistakes"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Report{Mistakes: []Mistake{}, Summary: strings.TrimSpace(raw)}
	}

	report := Report{Mistakes: make([]Mistake, 0, len(parsed.Mistakes)), Summary: parsed.Summary}
	for _, m := range parsed.Mistakes {
		n, ok := questionNumber(m.QuestionNumber)
		if !ok {
			a.log.Warnw("dropping mistake with non-integer question number", "raw", string(m.QuestionNumber))
			continue
		}
		key := fmt.Sprintf("%d", n)
		report.Mistakes = append(report.Mistakes, Mistake{
			QuestionNumber: n,
			Description:    m.Description,
			WhyWrong:       m.WhyWrong,
			HowToFix:       m.HowToFix,
			WeakArea:       m.WeakArea,
			UserAnswer:     userAnswers[key],
			CorrectAnswer:  correctAnswers[key],
		})
	}
	return report
}

// WeakAreas lists the distinct weak areas in report order.
func (r Report) WeakAreas() []string {
	seen := make(map[string]bool)
	var areas []string
	for _, m := range r.Mistakes {
		area := strings.TrimSpace(m.WeakArea)
		if area == "" || seen[area] {
			continue
		}
		seen[area] = true
		areas = append(areas, area)
	}
	return areas
}

// questionNumber coerces the model's question_number field, which shows up
// as an int, a quoted int, or garbage like "2a". Only whole integers pass.
func questionNumber(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func unionKeys(maps ...map[string]string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func orBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no answer)"
	}
	return s
}

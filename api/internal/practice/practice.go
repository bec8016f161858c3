// Package practice generates drill questions targeting a student's weak
// areas and grades their attempts.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

type Question struct {
	QuestionText  string   `json:"question_text"`
	Difficulty    string   `json:"difficulty"` // easy | medium | hard
	Topic         string   `json:"topic"`
	CorrectAnswer string   `json:"correct_answer"`
	SolutionSteps []string `json:"solution_steps"`
}

type Feedback struct {
	IsCorrect   bool   `json:"is_correct"`
	Feedback    string `json:"feedback"`
	Explanation string `json:"explanation"`
}

type Generator struct {
	orc oracle.Client
	log *zap.SugaredLogger
}

func NewGenerator(log *zap.SugaredLogger, orc oracle.Client) *Generator {
	return &Generator{orc: orc, log: log}
}

const generateSystem = `You are a math teacher writing practice problems. Always return valid JSON.`

// Generate produces up to count practice questions for the given weak
// areas. Any failure yields an empty slice, never an error: the caller's
// flow (show what we have) is the same either way.
func (g *Generator) Generate(ctx context.Context, weakAreas []string, count int, timeout time.Duration) []Question {
	if g.orc == nil || !g.orc.Available() || len(weakAreas) == 0 || count <= 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Generate %d practice problems for a student who struggles with: %s.

Mix difficulties (easy, medium, hard). Return a JSON array:
[
    {
        "question_text": "the problem statement",
        "difficulty": "easy",
        "topic": "which weak area this targets",
        "correct_answer": "the answer",
        "solution_steps": ["step 1", "step 2"]
    }
]`, count, strings.Join(weakAreas, ", "))

	sub, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := g.orc.Complete(sub, generateSystem, prompt, oracle.Options{
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		g.log.Warnw("practice generation failed", "err", err)
		return nil
	}

	raw := util.StripCodeFences(out)
	var questions []Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		// Some models wrap the array in an object.
		var wrapped struct {
			Questions []Question `json:"questions"`
			Problems  []Question `json:"problems"`
		}
		if json.Unmarshal([]byte(raw), &wrapped) != nil {
			g.log.Warnw("practice response not JSON", "body", util.Truncate(raw, 256))
			return nil
		}
		questions = wrapped.Questions
		if len(questions) == 0 {
			questions = wrapped.Problems
		}
	}

	kept := questions[:0]
	for _, q := range questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			continue
		}
		kept = append(kept, q)
	}
	if len(kept) > count {
		kept = kept[:count]
	}
	return kept
}

const checkSystem = `You are a supportive math tutor grading a practice attempt. Always return valid JSON.`

// CheckAnswer grades one practice attempt. When the oracle cannot be
// reached the known correct answer is compared verbatim as a last resort.
func (g *Generator) CheckAnswer(ctx context.Context, q Question, userAnswer string, timeout time.Duration) Feedback {
	literal := strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(q.CorrectAnswer))
	fallback := Feedback{
		IsCorrect: literal,
		Feedback:  "Could not grade this attempt automatically.",
	}
	if literal {
		fallback.Feedback = "Correct!"
	}
	if g.orc == nil || !g.orc.Available() {
		return fallback
	}

	prompt := fmt.Sprintf(`Question: %s
Correct answer: %s
Student's answer: %s

Is the student's answer correct (allow equivalent forms)? Return JSON:
{
    "is_correct": true/false,
    "feedback": "one encouraging sentence",
    "explanation": "how to solve it, shown step by step"
}`, q.QuestionText, q.CorrectAnswer, userAnswer)

	sub, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := g.orc.Complete(sub, checkSystem, prompt, oracle.Options{
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		g.log.Warnw("practice answer check failed", "err", err)
		return fallback
	}

	var fb Feedback
	raw := util.StripCodeFences(out)
	if err := json.Unmarshal([]byte(raw), &fb); err != nil {
		if inner := util.ExtractJSONObject(raw); inner == "" || json.Unmarshal([]byte(inner), &fb) != nil {
			return fallback
		}
	}
	if strings.TrimSpace(fb.Feedback) == "" {
		fb.Feedback = "Checked."
	}
	return fb
}

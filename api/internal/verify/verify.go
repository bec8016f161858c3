// Package verify reconciles extracted answers against their questions via
// the oracle: it corrects likely OCR misreadings, checks equivalence against
// a known correct answer when one exists, and scores confidence. Every
// failure mode degrades to the original extracted answer.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

// maxConcurrent bounds simultaneous verification calls to the oracle
// provider.
const maxConcurrent = 5

// DefaultAcceptConfidence is the minimum confidence before a corrected
// answer replaces the extracted one. Deliberately low-risk: a wrong
// substitution is worse than a missed correction.
const DefaultAcceptConfidence = 0.5

type Verification struct {
	MatchResult    string   `json:"match_result"` // correct | incorrect | unknown | timeout | error
	Confidence     float64  `json:"confidence"`   // 0..1
	VerifiedAnswer string   `json:"verified_answer"`
	Explanation    string   `json:"explanation"`
	OCRErrors      []string `json:"ocr_errors,omitempty"`
}

type Matcher struct {
	orc oracle.Client
	log *zap.SugaredLogger

	// AcceptConfidence gates answer substitution in ApplyVerified.
	AcceptConfidence float64
}

func NewMatcher(log *zap.SugaredLogger, orc oracle.Client) *Matcher {
	return &Matcher{
		orc:              orc,
		log:              log,
		AcceptConfidence: DefaultAcceptConfidence,
	}
}

const matchSystem = `You are an expert at verifying student answers, accounting for OCR and handwriting errors. Always return valid JSON.`

func buildMatchPrompt(extracted, question, correct string) string {
	var b strings.Builder
	b.WriteString("You are verifying a student's answer extracted from handwriting.\n\n")
	b.WriteString("Question: " + question + "\n\n")
	b.WriteString("Extracted Answer (may have OCR errors): \"" + extracted + "\"\n")
	if correct != "" {
		b.WriteString("\nCorrect Answer (for reference): " + correct + "\n")
	}
	b.WriteString(`
Your task:
1. Interpret what the extracted answer likely means (accounting for OCR/handwriting errors)
2. Determine if it matches the correct answer (if provided) or if it's mathematically correct
3. Consider common OCR mistakes (e.g., '0' vs 'O', '1' vs 'l', '5' vs 'S')
4. Consider mathematical equivalence (e.g., "2x" vs "2*x", "1/2" vs "0.5")

Return JSON:
{
    "verified_answer": "the answer after correcting OCR errors (or original if correct)",
    "is_correct": true/false,
    "confidence": 0.0-1.0,
    "explanation": "brief explanation of the match",
    "ocr_errors_found": ["list of potential OCR errors corrected"]
}`)
	return b.String()
}

// MatchAnswer verifies one extracted answer. It never returns an error:
// oracle absence, timeouts and malformed responses all degrade to the
// original answer with confidence 0.
func (m *Matcher) MatchAnswer(ctx context.Context, extracted, question, correct string, timeout time.Duration) Verification {
	fallback := Verification{
		MatchResult:    "unknown",
		VerifiedAnswer: extracted,
	}
	if m.orc == nil || !m.orc.Available() {
		fallback.Explanation = "oracle not available"
		return fallback
	}

	sub, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := m.orc.Complete(sub, matchSystem, buildMatchPrompt(extracted, question, correct), oracle.Options{
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sub.Err(), context.DeadlineExceeded) {
			m.log.Warnw("answer verification timed out", "question", question)
			fallback.MatchResult = "timeout"
			fallback.Explanation = "verification timed out"
			return fallback
		}
		m.log.Warnw("answer verification failed", "err", err)
		fallback.MatchResult = "error"
		fallback.Explanation = "error: " + err.Error()
		return fallback
	}

	var parsed struct {
		VerifiedAnswer string   `json:"verified_answer"`
		IsCorrect      bool     `json:"is_correct"`
		Confidence     float64  `json:"confidence"`
		Explanation    string   `json:"explanation"`
		OCRErrors      []string `json:"ocr_errors_found"`
	}
	raw := util.StripCodeFences(out)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		if inner := util.ExtractJSONObject(raw); inner != "" {
			err = json.Unmarshal([]byte(inner), &parsed)
		}
		if err != nil {
			m.log.Warnw("verification response not JSON", "body", util.Truncate(raw, 256))
			fallback.MatchResult = "error"
			fallback.Explanation = "unparseable verification response"
			return fallback
		}
	}

	v := Verification{
		MatchResult:    "incorrect",
		Confidence:     clamp01(parsed.Confidence),
		VerifiedAnswer: parsed.VerifiedAnswer,
		Explanation:    parsed.Explanation,
		OCRErrors:      parsed.OCRErrors,
	}
	if parsed.IsCorrect {
		v.MatchResult = "correct"
	}
	if strings.TrimSpace(v.VerifiedAnswer) == "" {
		v.VerifiedAnswer = extracted
	}
	return v
}

// VerifyAll fans out over the extracted answers with bounded concurrency.
// One verification failing never aborts the batch; each task owns disjoint
// input, so the only shared write is the result map behind the group wait.
func (m *Matcher) VerifyAll(ctx context.Context, answers, questions, correct map[string]string, perAnswerTimeout time.Duration) map[string]Verification {
	results := make(map[string]Verification, len(answers))
	type keyed struct {
		key string
		v   Verification
	}
	ch := make(chan keyed, len(answers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for key := range answers {
		key := key
		g.Go(func() error {
			ch <- keyed{key: key, v: m.MatchAnswer(gctx, answers[key], questions[key], correct[key], perAnswerTimeout)}
			return nil
		})
	}
	_ = g.Wait()
	close(ch)
	for kv := range ch {
		results[kv.key] = kv.v
	}
	return results
}

// ApplyVerified returns the final answer map: the corrected answer replaces
// the extracted one only above the acceptance threshold.
func (m *Matcher) ApplyVerified(answers map[string]string, verifications map[string]Verification) map[string]string {
	threshold := m.AcceptConfidence
	if threshold <= 0 {
		threshold = DefaultAcceptConfidence
	}
	final := make(map[string]string, len(answers))
	for key, extracted := range answers {
		final[key] = extracted
		if v, ok := verifications[key]; ok && v.Confidence > threshold && strings.TrimSpace(v.VerifiedAnswer) != "" {
			final[key] = v.VerifiedAnswer
		}
	}
	return final
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

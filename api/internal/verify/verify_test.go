package verify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"test-analyzer/api/internal/oracle"
)

type fakeOracle struct {
	mu        sync.Mutex
	out       string
	err       error
	calls     int
	available bool
	block     time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeOracle) Name() string    { return "fake" }
func (f *fakeOracle) Available() bool { return f.available }

func (f *fakeOracle) Complete(ctx context.Context, _, _ string, _ oracle.Options) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.block > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.block):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

func testLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestMatchAnswerCorrect(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{"verified_answer":"x = 2","is_correct":true,"confidence":0.9,"explanation":"matches","ocr_errors_found":[]}`}
	m := NewMatcher(testLog(), orc)

	v := m.MatchAnswer(context.Background(), "x = 2", "Solve 2x=4", "x = 2", time.Second)
	assert.Equal(t, "correct", v.MatchResult)
	assert.Equal(t, "x = 2", v.VerifiedAnswer)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
}

func TestMatchAnswerOCRCorrection(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{"verified_answer":"105","is_correct":true,"confidence":0.8,"explanation":"O misread as 0","ocr_errors_found":["1O5 -> 105"]}`}
	m := NewMatcher(testLog(), orc)

	v := m.MatchAnswer(context.Background(), "1O5", "Compute 21*5", "105", time.Second)
	assert.Equal(t, "105", v.VerifiedAnswer)
	assert.Len(t, v.OCRErrors, 1)
}

func TestMatchAnswerUnavailable(t *testing.T) {
	m := NewMatcher(testLog(), nil)

	v := m.MatchAnswer(context.Background(), "x = 2", "q", "", time.Second)
	assert.Equal(t, "unknown", v.MatchResult)
	assert.Zero(t, v.Confidence)
	assert.Equal(t, "x = 2", v.VerifiedAnswer)
}

func TestMatchAnswerTimeout(t *testing.T) {
	orc := &fakeOracle{available: true, block: time.Second}
	m := NewMatcher(testLog(), orc)

	v := m.MatchAnswer(context.Background(), "x = 2", "q", "", 10*time.Millisecond)
	assert.Equal(t, "timeout", v.MatchResult)
	assert.Zero(t, v.Confidence)
	assert.Equal(t, "x = 2", v.VerifiedAnswer, "timed-out verification keeps the extracted answer")
}

func TestMatchAnswerProviderError(t *testing.T) {
	orc := &fakeOracle{available: true, err: errors.New("upstream 500")}
	m := NewMatcher(testLog(), orc)

	v := m.MatchAnswer(context.Background(), "x = 2", "q", "", time.Second)
	assert.Equal(t, "error", v.MatchResult)
	assert.Equal(t, "x = 2", v.VerifiedAnswer)
}

func TestMatchAnswerClampsConfidence(t *testing.T) {
	for raw, want := range map[string]float64{
		`{"verified_answer":"a","is_correct":true,"confidence":3.7}`:  1.0,
		`{"verified_answer":"a","is_correct":true,"confidence":-0.4}`: 0.0,
	} {
		orc := &fakeOracle{available: true, out: raw}
		m := NewMatcher(testLog(), orc)
		v := m.MatchAnswer(context.Background(), "a", "q", "", time.Second)
		assert.InDelta(t, want, v.Confidence, 1e-9)
	}
}

func TestMatchAnswerNonJSON(t *testing.T) {
	orc := &fakeOracle{available: true, out: "looks right to me"}
	m := NewMatcher(testLog(), orc)

	v := m.MatchAnswer(context.Background(), "x = 2", "q", "", time.Second)
	assert.Equal(t, "error", v.MatchResult)
	assert.Equal(t, "x = 2", v.VerifiedAnswer)
}

func TestVerifyAllBoundedFanOut(t *testing.T) {
	orc := &fakeOracle{available: true, block: 30 * time.Millisecond, out: `{"verified_answer":"ok","is_correct":true,"confidence":0.9}`}
	m := NewMatcher(testLog(), orc)

	answers := map[string]string{}
	questions := map[string]string{}
	for _, k := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"} {
		answers[k] = "a" + k
		questions[k] = "q" + k
	}

	results := m.VerifyAll(context.Background(), answers, questions, nil, time.Second)
	assert.Len(t, results, len(answers))
	assert.LessOrEqual(t, orc.maxInFlight.Load(), int32(5))
}

func TestVerifyAllIsolatesFailures(t *testing.T) {
	orc := &fakeOracle{available: true, err: errors.New("boom")}
	m := NewMatcher(testLog(), orc)

	answers := map[string]string{"1": "a", "2": "b"}
	questions := map[string]string{"1": "q1", "2": "q2"}
	results := m.VerifyAll(context.Background(), answers, questions, nil, time.Second)

	assert.Len(t, results, 2)
	for key, v := range results {
		assert.Equal(t, "error", v.MatchResult)
		assert.Equal(t, answers[key], v.VerifiedAnswer)
	}
}

func TestApplyVerifiedThreshold(t *testing.T) {
	m := NewMatcher(testLog(), nil)
	m.AcceptConfidence = 0.5

	answers := map[string]string{"1": "1O5", "2": "x = 3", "3": "7"}
	verifications := map[string]Verification{
		"1": {MatchResult: "correct", Confidence: 0.9, VerifiedAnswer: "105"},
		"2": {MatchResult: "correct", Confidence: 0.5, VerifiedAnswer: "x = 3.0"}, // not strictly above
		"3": {MatchResult: "timeout", Confidence: 0.0, VerifiedAnswer: "7"},
	}

	final := m.ApplyVerified(answers, verifications)
	assert.Equal(t, "105", final["1"])
	assert.Equal(t, "x = 3", final["2"], "confidence must exceed the threshold, not meet it")
	assert.Equal(t, "7", final["3"])
}

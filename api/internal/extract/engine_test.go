package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStrategy struct {
	name  string
	qa    QA
	err   error
	calls int
	slow  time.Duration
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Extract(ctx context.Context, _ string) (QA, error) {
	s.calls++
	if s.slow > 0 {
		select {
		case <-ctx.Done():
			return emptyQA(), ctx.Err()
		case <-time.After(s.slow):
		}
	}
	if s.err != nil {
		return emptyQA(), s.err
	}
	return s.qa, nil
}

func qaWith(key, question, answer string) QA {
	qa := emptyQA()
	qa.Questions[key] = question
	if answer != "" {
		qa.Answers[key] = answer
	}
	return qa
}

func testLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestCascadeStopsAtFirstNonEmpty(t *testing.T) {
	first := &fakeStrategy{name: "first", qa: qaWith("1", "q", "a")}
	second := &fakeStrategy{name: "second", qa: qaWith("2", "q", "b")}

	e := NewWithStrategies(testLog(), time.Second, first, second)
	qa := e.Run(context.Background(), "text")

	assert.Equal(t, "a", qa.Answers["1"])
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "later passes must not run once answers exist")
}

func TestCascadeContinuesPastEmptyAndFailed(t *testing.T) {
	empty := &fakeStrategy{name: "empty", qa: emptyQA()}
	failed := &fakeStrategy{name: "failed", err: errors.New("provider down")}
	// Questions without answers do not stop the cascade either.
	questionsOnly := &fakeStrategy{name: "questions-only", qa: qaWith("1", "q", "")}
	last := &fakeStrategy{name: "last", qa: qaWith("3", "q", "c")}

	e := NewWithStrategies(testLog(), time.Second, empty, failed, questionsOnly, last)
	qa := e.Run(context.Background(), "text")

	assert.Equal(t, "c", qa.Answers["3"])
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, failed.calls)
	assert.Equal(t, 1, questionsOnly.calls)
	assert.Equal(t, 1, last.calls)
}

func TestCascadeAllExhausted(t *testing.T) {
	e := NewWithStrategies(testLog(), time.Second,
		&fakeStrategy{name: "a", qa: emptyQA()},
		&fakeStrategy{name: "b", err: errors.New("nope")},
	)
	qa := e.Run(context.Background(), "text")

	require.NotNil(t, qa.Questions)
	require.NotNil(t, qa.Answers)
	assert.Empty(t, qa.Answers)
}

func TestCascadePassTimeoutDegradesToNextPass(t *testing.T) {
	slow := &fakeStrategy{name: "slow", slow: 500 * time.Millisecond, qa: qaWith("1", "q", "a")}
	fast := &fakeStrategy{name: "fast", qa: qaWith("2", "q", "b")}

	e := NewWithStrategies(testLog(), 20*time.Millisecond, slow, fast)
	qa := e.Run(context.Background(), "text")

	assert.Equal(t, "b", qa.Answers["2"], "timed-out pass yields nothing, next pass still runs")
}

func TestCascadeRespectsCallerBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	never := &fakeStrategy{name: "never", qa: qaWith("1", "q", "a")}
	e := NewWithStrategies(testLog(), time.Second, never)
	qa := e.Run(ctx, "text")

	assert.Empty(t, qa.Answers)
	assert.Equal(t, 0, never.calls)
}

func TestDefaultCascadeEndsWithHeuristic(t *testing.T) {
	// With no oracle configured every prompted pass skips itself and the
	// deterministic scan still produces a result.
	e := New(testLog(), nil, time.Second)
	qa := e.Run(context.Background(), "Question 1: Solve for x: 2x + 3 = 7\n2x = 4\nx = 2")

	assert.Equal(t, "2", qa.Answers["1"])
}

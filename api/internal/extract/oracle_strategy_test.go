package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"test-analyzer/api/internal/oracle"
)

type fakeOracle struct {
	out       string
	err       error
	calls     int
	lastUser  string
	available bool
}

func (f *fakeOracle) Name() string    { return "fake" }
func (f *fakeOracle) Available() bool { return f.available }

func (f *fakeOracle) Complete(_ context.Context, _, user string, _ oracle.Options) (string, error) {
	f.calls++
	f.lastUser = user
	return f.out, f.err
}

func TestOracleStrategyDecodesResponse(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{"questions":{"1":"Solve"},"user_answers":{"1":"x = 2"}}`}
	s := &oracleStrategy{name: "structured", orc: orc, prompt: structuredPrompt}

	qa, err := s.Extract(context.Background(), "some work")
	assert.NoError(t, err)
	assert.Equal(t, "x = 2", qa.Answers["1"])
}

func TestOracleStrategyStripsCodeFences(t *testing.T) {
	orc := &fakeOracle{available: true, out: "```json\n{\"questions\":{\"1\":\"q\"},\"user_answers\":{\"1\":\"7\"}}\n```"}
	s := &oracleStrategy{name: "structured", orc: orc, prompt: structuredPrompt}

	qa, _ := s.Extract(context.Background(), "work")
	assert.Equal(t, "7", qa.Answers["1"])
}

func TestOracleStrategyRecoversEmbeddedJSON(t *testing.T) {
	orc := &fakeOracle{available: true, out: `Sure! Here is the result: {"questions":{"2":"q"},"user_answers":{"2":"ok"}} Hope that helps.`}
	s := &oracleStrategy{name: "fallback", orc: orc, prompt: fallbackPrompt}

	qa, _ := s.Extract(context.Background(), "work")
	assert.Equal(t, "ok", qa.Answers["2"])
}

func TestOracleStrategyDropsAnswersWithoutQuestions(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{"questions":{"1":"q"},"user_answers":{"1":"a","7":"orphan"}}`}
	s := &oracleStrategy{name: "structured", orc: orc, prompt: structuredPrompt}

	qa, _ := s.Extract(context.Background(), "work")
	assert.Equal(t, "a", qa.Answers["1"])
	assert.NotContains(t, qa.Answers, "7")
}

func TestOracleStrategyNonJSONYieldsEmpty(t *testing.T) {
	orc := &fakeOracle{available: true, out: "I could not find any answers in the text."}
	s := &oracleStrategy{name: "minimal", orc: orc, prompt: minimalPrompt, truncate: 1000, gated: true}

	qa, err := s.Extract(context.Background(), "plenty of text here")
	assert.NoError(t, err)
	assert.Empty(t, qa.Answers)
}

func TestOracleStrategySkipsWhenUnavailable(t *testing.T) {
	orc := &fakeOracle{available: false}
	s := &oracleStrategy{name: "structured", orc: orc, prompt: structuredPrompt}

	qa, err := s.Extract(context.Background(), "work")
	assert.NoError(t, err)
	assert.Empty(t, qa.Answers)
	assert.Equal(t, 0, orc.calls)
}

func TestOracleStrategyGatedOnShortInput(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{}`}
	s := &oracleStrategy{name: "fallback", orc: orc, prompt: fallbackPrompt, gated: true}

	_, _ = s.Extract(context.Background(), "x=2")
	assert.Equal(t, 0, orc.calls, "escalation passes skip trivially short input")

	_, _ = s.Extract(context.Background(), "x = 2 and some more work")
	assert.Equal(t, 1, orc.calls)
}

func TestOracleStrategyTruncatesInput(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{}`}
	s := &oracleStrategy{name: "desperate", orc: orc, prompt: desperatePrompt, truncate: 2000, gated: true}

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	_, _ = s.Extract(context.Background(), string(long))
	assert.LessOrEqual(t, len(orc.lastUser), len(desperatePrompt)+2000)
}

func TestOracleStrategyTruncatesOnRuneBoundary(t *testing.T) {
	orc := &fakeOracle{available: true, out: `{}`}
	s := &oracleStrategy{name: "minimal", orc: orc, prompt: minimalPrompt, truncate: 1000, gated: true}

	// Place a 3-byte rune straddling the cut point.
	text := strings.Repeat("x", 999) + "≠≤≥" + strings.Repeat("y", 100)
	_, _ = s.Extract(context.Background(), text)

	assert.True(t, utf8.ValidString(orc.lastUser), "truncation must not split a rune")
}

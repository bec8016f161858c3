package recognize

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"test-analyzer/api/internal/oracle"
)

type fakeEngine struct {
	name  string
	res   Result
	err   error
	calls int
	slow  time.Duration
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, _ image.Image) (Result, error) {
	f.calls++
	if f.slow > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(f.slow):
		}
	}
	return f.res, f.err
}

type fakeOracle struct {
	out       string
	err       error
	calls     int
	available bool
}

func (f *fakeOracle) Name() string    { return "fake" }
func (f *fakeOracle) Available() bool { return f.available }

func (f *fakeOracle) Complete(_ context.Context, _, _ string, _ oracle.Options) (string, error) {
	f.calls++
	return f.out, f.err
}

func testLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func testImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	return img
}

func TestReadPicksHighestConfidence(t *testing.T) {
	low := &fakeEngine{name: "low", res: Result{Text: "blurry", Confidence: 0.6}}
	high := &fakeEngine{name: "high", res: Result{Text: "crisp text", Confidence: 0.9}}

	a := NewAdapter(testLog(), nil, nil, low, high)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Equal(t, "crisp text", got.Text)
	assert.Equal(t, "high", got.Method)
}

func TestReadDropsFailedEngine(t *testing.T) {
	broken := &fakeEngine{name: "broken", err: errors.New("no binary")}
	ok := &fakeEngine{name: "ok", res: Result{Text: "hello", Confidence: 0.7}}

	a := NewAdapter(testLog(), nil, nil, broken, ok)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, 1, broken.calls, "failed engine was tried, then dropped")
}

func TestReadDropsTimedOutEngine(t *testing.T) {
	slow := &fakeEngine{name: "slow", slow: time.Second, res: Result{Text: "late", Confidence: 0.9}}
	fast := &fakeEngine{name: "fast", res: Result{Text: "early", Confidence: 0.4}}

	a := NewAdapter(testLog(), nil, nil, slow, fast)
	got := a.Read(context.Background(), testImage(), 50*time.Millisecond)

	assert.Equal(t, "early", got.Text)
}

func TestReadNoEnginesUsable(t *testing.T) {
	a := NewAdapter(testLog(), nil, nil, &fakeEngine{name: "e", err: errors.New("down")})
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Empty(t, got.Text)
	assert.Equal(t, "none", got.Method)
	assert.Zero(t, got.Confidence)
}

func TestReadRefinesLowConfidence(t *testing.T) {
	eng := &fakeEngine{name: "hand", res: Result{Text: "2x t 3 = 7", Confidence: 0.3, Method: "handwriting"}}
	orc := &fakeOracle{available: true, out: "2x + 3 = 7"}

	a := NewAdapter(testLog(), orc, nil, eng)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Equal(t, "2x + 3 = 7", got.Text)
	assert.Equal(t, "handwriting+ai", got.Method)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	assert.Equal(t, 1, orc.calls)
}

func TestReadSkipsRefineWhenConfident(t *testing.T) {
	eng := &fakeEngine{name: "hand", res: Result{Text: "clear text", Confidence: 0.8}}
	orc := &fakeOracle{available: true, out: "should not be used"}

	a := NewAdapter(testLog(), orc, nil, eng)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Equal(t, "clear text", got.Text)
	assert.Equal(t, 0, orc.calls)
}

func TestReadRejectsDrasticallyShorterRefinement(t *testing.T) {
	eng := &fakeEngine{name: "hand", res: Result{Text: "a long stretch of recognized handwriting", Confidence: 0.2, Method: "handwriting"}}
	orc := &fakeOracle{available: true, out: "ok"}

	a := NewAdapter(testLog(), orc, nil, eng)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.Equal(t, "a long stretch of recognized handwriting", got.Text)
	assert.Equal(t, "handwriting", got.Method, "a refinement that loses most of the text is discarded")
}

func TestReadConfidenceCappedAtOne(t *testing.T) {
	eng := &fakeEngine{name: "hand", res: Result{Text: "almost there", Confidence: 0.45, Method: "hand"}}
	orc := &fakeOracle{available: true, out: "almost there!"}

	a := NewAdapter(testLog(), orc, nil, eng)
	got := a.Read(context.Background(), testImage(), time.Second)

	assert.LessOrEqual(t, got.Confidence, 1.0)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
}

func TestExtractContentCombinesLatexAndText(t *testing.T) {
	latex := &fakeEngine{name: "latex", res: Result{Text: "x = 2\n2x + 3 = 7"}}
	text := &fakeEngine{name: "hand", res: Result{Text: "Question 1: solve", Confidence: 0.9}}

	a := NewAdapter(testLog(), nil, latex, text)
	c := a.ExtractContent(context.Background(), testImage(), time.Second)

	assert.Equal(t, "Question 1: solve", c.Text)
	assert.Equal(t, []string{"x = 2", "2x + 3 = 7"}, c.Equations)
	assert.Contains(t, c.FullContent, "Question 1: solve")
	assert.Contains(t, c.FullContent, "x = 2")
	// Bottom region first, then full image.
	assert.Equal(t, 2, latex.calls)
}

func TestExtractContentDeduplicatesEquations(t *testing.T) {
	// The bottom crop and the full image both see the same equation.
	latex := &fakeEngine{name: "latex", res: Result{Text: "x = 2"}}
	a := NewAdapter(testLog(), nil, latex)

	c := a.ExtractContent(context.Background(), testImage(), time.Second)
	assert.Equal(t, []string{"x = 2"}, c.Equations)
}

func TestExtractContentNoEngines(t *testing.T) {
	a := NewAdapter(testLog(), nil, nil)
	c := a.ExtractContent(context.Background(), testImage(), time.Second)

	assert.Empty(t, c.FullContent)
	assert.Equal(t, "none", c.MethodUsed)
}

func TestEstimateConfidence(t *testing.T) {
	assert.Zero(t, EstimateConfidence(""))
	assert.Zero(t, EstimateConfidence("   "))

	clean := EstimateConfidence("Solve for x: 2x + 3 = 7")
	garbage := EstimateConfidence("�����•••◆◆◆")
	assert.Greater(t, clean, garbage)
	assert.LessOrEqual(t, clean, 1.0)
	assert.GreaterOrEqual(t, garbage, 0.0)
}

func TestEstimateConfidenceWordBonus(t *testing.T) {
	single := EstimateConfidence("abc")
	sentence := EstimateConfidence("abc def ghi")
	assert.Greater(t, sentence, single)
}

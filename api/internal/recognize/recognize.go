// Package recognize is the adapter over the OCR backends. It runs the
// available engines under fractional sub-timeouts, ranks candidates by
// confidence and optionally reinterprets low-confidence text via the oracle.
package recognize

import (
	"context"
	"image"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"test-analyzer/api/internal/oracle"
)

type Result struct {
	Text       string
	Confidence float64 // 0..1
	Method     string
}

type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (Result, error)
}

// Content is the combined output of one image: math notation as LaTeX lines,
// freeform text, and the concatenation fed to the extraction engine.
type Content struct {
	Equations   []string `json:"equations"`
	Text        string   `json:"text"`
	FullContent string   `json:"full_content"`
	Confidence  float64  `json:"confidence"`
	MethodUsed  string   `json:"method_used"`
}

// refineBelow is the confidence under which the best OCR candidate is handed
// to the oracle for reinterpretation.
const refineBelow = 0.5

type Adapter struct {
	engines []Engine
	latex   Engine // math-notation engine, may be nil
	orc     oracle.Client
	log     *zap.SugaredLogger
}

func NewAdapter(log *zap.SugaredLogger, orc oracle.Client, latex Engine, engines ...Engine) *Adapter {
	return &Adapter{
		engines: engines,
		latex:   latex,
		orc:     orc,
		log:     log,
	}
}

// Read runs each text engine with a share of the total timeout (0.4 for the
// primary engine, 0.3 for the rest), drops timed-out or failed engines, and
// returns the highest-confidence result, optionally oracle-refined. With no
// usable engine output it returns a zero Result with Method "none".
func (a *Adapter) Read(ctx context.Context, img image.Image, timeout time.Duration) Result {
	var results []Result

	for i, eng := range a.engines {
		frac := 0.3
		if i == 0 {
			frac = 0.4
		}
		sub, cancel := context.WithTimeout(ctx, time.Duration(float64(timeout)*frac))
		res, err := eng.Recognize(sub, img)
		cancel()
		if err != nil {
			a.log.Warnw("ocr engine skipped", "engine", eng.Name(), "err", err)
			continue
		}
		if strings.TrimSpace(res.Text) == "" {
			continue
		}
		if res.Method == "" {
			res.Method = eng.Name()
		}
		results = append(results, res)
		a.log.Infow("ocr candidate", "engine", eng.Name(), "chars", len(res.Text), "confidence", res.Confidence)
	}

	if len(results) == 0 {
		return Result{Method: "none"}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	best := results[0]

	if best.Confidence < refineBelow && a.orc != nil && a.orc.Available() {
		sub, cancel := context.WithTimeout(ctx, time.Duration(float64(timeout)*0.3))
		refined := a.refine(sub, best.Text)
		cancel()
		// A drastically shorter reinterpretation usually means the model gave
		// up; keep the raw OCR in that case.
		if refined != "" && len(refined) > len(best.Text)/2 {
			best.Text = refined
			best.Method += "+ai"
			best.Confidence = minF(best.Confidence+0.2, 1.0)
			a.log.Infow("ocr refined by oracle", "method", best.Method, "confidence", best.Confidence)
		}
	}
	return best
}

// ExtractContent combines equation recognition and text recognition for one
// image. The bottom ~30% of the page is recognized first, since final
// answers usually sit there, and its equations are prepended, de-duplicated.
func (a *Adapter) ExtractContent(ctx context.Context, img image.Image, timeout time.Duration) Content {
	out := Content{Equations: []string{}, MethodUsed: "none"}

	if a.latex != nil {
		bottom := BottomRegion(img, 0.3)
		var eqs []string
		for _, target := range []image.Image{bottom, img} {
			sub, cancel := context.WithTimeout(ctx, time.Duration(float64(timeout)*0.25))
			res, err := a.latex.Recognize(sub, target)
			cancel()
			if err != nil {
				a.log.Warnw("latex engine skipped", "err", err)
				continue
			}
			for _, line := range strings.Split(res.Text, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					eqs = append(eqs, line)
				}
			}
		}
		out.Equations = dedupe(eqs)
	}

	best := a.Read(ctx, img, timeout/2)
	out.Text = best.Text
	out.Confidence = best.Confidence
	out.MethodUsed = best.Method

	parts := make([]string, 0, 2)
	if out.Text != "" {
		parts = append(parts, out.Text)
	}
	if len(out.Equations) > 0 {
		parts = append(parts, strings.Join(out.Equations, "\n"))
	}
	out.FullContent = strings.Join(parts, "\n")
	return out
}

func (a *Adapter) refine(ctx context.Context, unclear string) string {
	const system = "You are an expert at interpreting unclear handwriting, especially mathematical notation."
	user := `The OCR system extracted this text from a handwritten image, but it may be unclear or have errors:

Extracted text: "` + unclear + `"

Please interpret what the handwriting likely says. Consider:
1. Common handwriting patterns and mistakes
2. Mathematical notation and symbols
3. Context clues from partial words
4. Similar-looking characters (e.g., 'a' vs 'o', '1' vs 'l')

Return ONLY the corrected/interpreted text, without any explanation. If the text seems correct, return it as-is.`

	refined, err := a.orc.Complete(ctx, system, user, oracle.Options{Temperature: 0.2, MaxTokens: 500})
	if err != nil {
		a.log.Warnw("oracle refine failed", "err", err)
		return ""
	}
	return strings.TrimSpace(refined)
}

// EstimateConfidence scores OCR output quality in [0,1] for engines that do
// not report a confidence themselves: share of sensible characters, plus a
// small bonus for word structure.
func EstimateConfidence(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	runes := []rune(text)
	sensible := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
			strings.ContainsRune("=+-*/^(){}[]|<>.,:;≠≤≥", r) {
			sensible++
		}
	}
	score := float64(sensible) / float64(len(runes)) * 0.8
	if len(strings.Fields(text)) >= 3 {
		score += 0.1
	}
	return minF(score, 1.0)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Package latex is the math-notation-specialized recognition engine. It asks
// Gemini vision to transcribe equations from the image as LaTeX, one per
// line.
package latex

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/util"
)

const system = `You transcribe mathematical notation from images of schoolwork.
Return ONLY the equations and expressions you can read, as LaTeX, one per line.
Do not solve anything, do not explain, do not add text that is not in the image.
If the image contains no mathematical notation, return an empty response.`

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string { return "latex" }

func (e *Engine) Recognize(ctx context.Context, img image.Image) (recognize.Result, error) {
	if e.APIKey == "" {
		return recognize.Result{}, fmt.Errorf("GEMINI_API_KEY is empty")
	}

	processed := recognize.PreprocessPrinted(img)
	raw, err := recognize.EncodePNG(processed)
	if err != nil {
		return recognize.Result{}, err
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return recognize.Result{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	var temp float32
	m.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := m.GenerateContent(ctx,
		genai.Text("Transcribe all equations in this image as LaTeX, one per line."),
		genai.ImageData("png", raw),
	)
	if err != nil {
		return recognize.Result{}, err
	}

	text := util.StripCodeFences(firstText(resp))
	return recognize.Result{
		Text:       text,
		Confidence: recognize.EstimateConfidence(text),
		Method:     e.Name(),
	}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

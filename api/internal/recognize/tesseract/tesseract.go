// Package tesseract is the local OCR engine for printed or clean content.
// Tesseract is an optional dependency: a missing install surfaces as a
// recognition error, which the adapter drops.
package tesseract

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"test-analyzer/api/internal/recognize"
)

type Engine struct {
	language string
}

func New(language string) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, img image.Image) (recognize.Result, error) {
	if err := ctx.Err(); err != nil {
		return recognize.Result{}, err
	}

	processed := recognize.PreprocessPrinted(img)
	raw, err := recognize.EncodePNG(processed)
	if err != nil {
		return recognize.Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.language); err != nil {
		return recognize.Result{}, fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetImageFromBytes(raw); err != nil {
		return recognize.Result{}, fmt.Errorf("tesseract set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return recognize.Result{}, fmt.Errorf("tesseract: %w", err)
	}
	if err := ctx.Err(); err != nil {
		// The library call cannot be interrupted; honor the deadline after
		// the fact so a slow recognition is still dropped.
		return recognize.Result{}, err
	}

	return recognize.Result{
		Text:       text,
		Confidence: recognize.EstimateConfidence(text),
		Method:     e.Name(),
	}, nil
}

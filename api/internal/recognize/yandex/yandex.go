// Package yandex is the hosted handwriting recognition engine, built on the
// Yandex Vision OCR "handwritten" model.
package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/util"
)

type Engine struct {
	iamc     *IamClient
	folderID string
	httpc    *http.Client
}

func New(oauthToken, folderID string) *Engine {
	return &Engine{
		iamc:     NewIamClient(oauthToken),
		folderID: folderID,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "handwriting" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`      // "JPEG" | "PNG" | "PDF"
	LanguageCodes []string `json:"languageCodes,omitempty"` // ["en"]
	Model         string   `json:"model,omitempty"`
}

type response struct {
	Result *struct {
		TextAnnotation *struct {
			FullText string `json:"fullText,omitempty"`
			Blocks   []struct {
				Lines []struct {
					Text string `json:"text,omitempty"`
				} `json:"lines,omitempty"`
			} `json:"blocks,omitempty"`
		} `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

func (e *Engine) Recognize(ctx context.Context, img image.Image) (recognize.Result, error) {
	processed := recognize.PreprocessHandwriting(img)
	raw, err := recognize.EncodePNG(processed)
	if err != nil {
		return recognize.Result{}, err
	}

	iamToken, err := e.iamc.Token(ctx)
	if err != nil {
		return recognize.Result{}, err
	}

	reqBody := request{
		Content:       base64.StdEncoding.EncodeToString(raw),
		MimeType:      util.SniffMimeForOCR(raw),
		LanguageCodes: []string{"en"},
		Model:         "handwritten",
	}
	payload, _ := json.Marshal(reqBody)

	build := func(token string) *http.Request {
		req, _ := http.NewRequestWithContext(ctx, "POST",
			"https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText",
			bytes.NewReader(payload),
		)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-folder-id", e.folderID)
		return req
	}

	resp, err := e.httpc.Do(build(iamToken))
	if err != nil {
		return recognize.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// one retry with a fresh IAM token
		e.iamc.Invalidate()
		if iamToken, err = e.iamc.Token(ctx); err != nil {
			return recognize.Result{}, err
		}
		resp.Body.Close()
		resp, err = e.httpc.Do(build(iamToken))
		if err != nil {
			return recognize.Result{}, err
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return recognize.Result{}, fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, util.Truncate(string(x), 512))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return recognize.Result{}, err
	}

	text := joinAnnotation(out)
	return recognize.Result{
		Text: text,
		// The API reports no confidence; estimate from text quality.
		Confidence: recognize.EstimateConfidence(text),
		Method:     e.Name(),
	}, nil
}

func joinAnnotation(out response) string {
	if out.Result == nil || out.Result.TextAnnotation == nil {
		return ""
	}
	ta := out.Result.TextAnnotation
	if t := strings.TrimSpace(ta.FullText); t != "" {
		return t
	}
	// fallback: assemble lines from blocks
	var lines []string
	for _, b := range ta.Blocks {
		for _, l := range b.Lines {
			if s := strings.TrimSpace(l.Text); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return strings.Join(lines, "\n")
}

package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/store"
	"test-analyzer/api/internal/textnorm"
	"test-analyzer/api/internal/util"
	"test-analyzer/api/internal/verify"
)

const maxUploadBytes = 20 << 20

// TestResult is the common response shape for upload-test and analyze-text.
type TestResult struct {
	TestID        string                         `json:"test_id"`
	Questions     map[string]string              `json:"questions"`
	UserAnswers   map[string]string              `json:"user_answers"`
	FinalAnswers  map[string]string              `json:"final_answers"`
	Verifications map[string]verify.Verification `json:"verifications,omitempty"`
	RawText       string                         `json:"raw_text,omitempty"`
	OCRMethod     string                         `json:"ocr_method,omitempty"`
	OCRConfidence float64                        `json:"ocr_confidence,omitempty"`
	FromCache     bool                           `json:"from_cache,omitempty"`
}

// UploadTest accepts one or more photos of a handwritten test — multipart
// files or JSON with base64 payloads — and runs the full pipeline:
// recognize, normalize, extract, verify. An extraction that finds nothing is
// not an error; the raw recognized text comes back so the client can show it
// and offer manual entry.
func (h *Handle) UploadTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var rawImages [][]byte
	var correct map[string]string
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		rawImages, correct, err = readJSONUpload(r)
	} else {
		rawImages, correct, err = readMultipartUpload(r)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var allRaw []byte
	var images []image.Image
	for _, raw := range rawImages {
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			http.Error(w, "unsupported image format: "+err.Error(), http.StatusBadRequest)
			return
		}
		allRaw = append(allRaw, raw...)
		images = append(images, img)
	}
	imageHash := util.SHA256Hex(allRaw)

	ctx := r.Context()

	// Same photo uploaded again: reuse the cached extraction.
	if h.extractions != nil {
		if row, err := h.extractions.FindByHash(ctx, imageHash, cacheMaxAge); err == nil {
			h.log.Infow("extraction cache hit", "hash", imageHash, "test_id", row.TestID)
			writeJSON(w, http.StatusOK, h.finish(ctx, row.TestID, row.QA, correct, row.RawText, row.Method, row.Confidence, true))
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			h.log.Warnw("extraction cache lookup failed", "err", err)
		}
	}

	var texts []string
	var method string
	confidence := 1.0
	for _, img := range images {
		content := h.rec.ExtractContent(ctx, img, h.t.OCR)
		if strings.TrimSpace(content.FullContent) != "" {
			texts = append(texts, content.FullContent)
		}
		if method == "" {
			method = content.MethodUsed
		}
		if content.Confidence < confidence {
			confidence = content.Confidence
		}
	}
	rawText := textnorm.Clean(strings.Join(texts, "\n"))

	testID := uuid.NewString()
	qa := h.ext.Run(ctx, rawText)

	if h.extractions != nil {
		if err := h.extractions.Upsert(ctx, testID, imageHash, method, rawText, qa, confidence); err != nil {
			h.log.Warnw("extraction cache save failed", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, h.finish(ctx, testID, qa, correct, rawText, method, confidence, false))
}

// finish runs verification over the extracted answers and assembles the
// response. Raw text is surfaced only when extraction came up empty.
func (h *Handle) finish(ctx context.Context, testID string, qa extract.QA, correct map[string]string, rawText, method string, confidence float64, cached bool) TestResult {
	res := TestResult{
		TestID:        testID,
		Questions:     qa.Questions,
		UserAnswers:   qa.Answers,
		FinalAnswers:  qa.Answers,
		OCRMethod:     method,
		OCRConfidence: confidence,
		FromCache:     cached,
	}
	if len(qa.Answers) == 0 {
		res.RawText = rawText
		return res
	}
	res.Verifications = h.match.VerifyAll(ctx, qa.Answers, qa.Questions, correct, h.t.Verify)
	res.FinalAnswers = h.match.ApplyVerified(qa.Answers, res.Verifications)
	return res
}

func readMultipartUpload(r *http.Request) ([][]byte, map[string]string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("bad multipart form: %w", err)
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		files = r.MultipartForm.File["image"]
	}
	if len(files) == 0 {
		return nil, nil, errors.New("no images attached")
	}

	var raws [][]byte
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read upload: %w", err)
		}
		raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read upload: %w", err)
		}
		raws = append(raws, raw)
	}
	return raws, parseAnswersField(r.FormValue("correct_answers")), nil
}

type jsonUploadReq struct {
	Images         []string          `json:"images"` // base64, data: URIs accepted
	CorrectAnswers map[string]string `json:"correct_answers"`
}

func readJSONUpload(r *http.Request) ([][]byte, map[string]string, error) {
	var req jsonUploadReq
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("bad json: %w", err)
	}
	if len(req.Images) == 0 {
		return nil, nil, errors.New("no images attached")
	}

	var raws [][]byte
	for _, enc := range req.Images {
		raw, hint, err := util.DecodeBase64MaybeDataURL(enc)
		if err != nil {
			return nil, nil, fmt.Errorf("bad base64 image: %w", err)
		}
		if mime := util.PickMIME("", hint, raw); !strings.HasPrefix(mime, "image/") {
			return nil, nil, fmt.Errorf("unsupported payload type %s", mime)
		}
		raws = append(raws, raw)
	}
	return raws, req.CorrectAnswers, nil
}

func parseAnswersField(s string) map[string]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

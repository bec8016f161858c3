package handle

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"test-analyzer/api/internal/textnorm"
)

type analyzeTextReq struct {
	Text           string            `json:"text"`
	CorrectAnswers map[string]string `json:"correct_answers"`
}

// AnalyzeText runs the pipeline on pasted text, skipping recognition.
func (h *Handle) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req analyzeTextReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	rawText := textnorm.Clean(req.Text)
	testID := uuid.NewString()
	qa := h.ext.Run(ctx, rawText)

	writeJSON(w, http.StatusOK, h.finish(ctx, testID, qa, req.CorrectAnswers, rawText, "text", 1.0, false))
}

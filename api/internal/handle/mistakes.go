package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"test-analyzer/api/internal/analyze"
)

type analyzeMistakesReq struct {
	TestID         string            `json:"test_id"`
	Questions      map[string]string `json:"questions"`
	UserAnswers    map[string]string `json:"user_answers"`
	CorrectAnswers map[string]string `json:"correct_answers"`
}

type analyzeMistakesResp struct {
	TestID    string            `json:"test_id,omitempty"`
	Mistakes  []analyze.Mistake `json:"mistakes"`
	Summary   string            `json:"summary"`
	WeakAreas []string          `json:"weak_areas"`
}

// AnalyzeMistakes produces the tutoring report. When questions/answers are
// omitted but a known test id is given, they are pulled from the cached
// extraction.
func (h *Handle) AnalyzeMistakes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req analyzeMistakesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if len(req.UserAnswers) == 0 && strings.TrimSpace(req.TestID) != "" && h.extractions != nil {
		if row, err := h.extractions.FindByTestID(ctx, req.TestID); err == nil {
			req.Questions = row.QA.Questions
			req.UserAnswers = row.QA.Answers
		}
	}

	report := h.anz.AnalyzeMistakes(ctx, req.Questions, req.UserAnswers, req.CorrectAnswers, h.t.Analyze)

	if h.reports != nil && strings.TrimSpace(req.TestID) != "" {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := h.reports.Save(saveCtx, req.TestID, report); err != nil {
			h.log.Warnw("report save failed", "test_id", req.TestID, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, analyzeMistakesResp{
		TestID:    req.TestID,
		Mistakes:  report.Mistakes,
		Summary:   report.Summary,
		WeakAreas: report.WeakAreas(),
	})
}

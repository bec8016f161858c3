package handle

import (
	"encoding/json"
	"net/http"
	"strings"

	"test-analyzer/api/internal/practice"
)

const defaultPracticeCount = 5

type generatePracticeReq struct {
	TestID    string   `json:"test_id"`
	WeakAreas []string `json:"weak_areas"`
	Count     int      `json:"count"`
}

// GeneratePractice returns drill questions for the student's weak areas.
// Weak areas come from the request, or from the stored mistake report when
// only a test id is given.
func (h *Handle) GeneratePractice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req generatePracticeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Count <= 0 {
		req.Count = defaultPracticeCount
	}

	ctx := r.Context()
	if len(req.WeakAreas) == 0 && strings.TrimSpace(req.TestID) != "" && h.reports != nil {
		areas, err := h.reports.WeakAreasByTestID(ctx, req.TestID)
		if err != nil {
			h.log.Warnw("weak area lookup failed", "test_id", req.TestID, "err", err)
		}
		req.WeakAreas = areas
	}
	if len(req.WeakAreas) == 0 {
		http.Error(w, "weak_areas is required (or a test_id with a stored report)", http.StatusBadRequest)
		return
	}

	questions := h.gen.Generate(ctx, req.WeakAreas, req.Count, h.t.Analyze)
	writeJSON(w, http.StatusOK, map[string]any{
		"weak_areas": req.WeakAreas,
		"questions":  questions,
	})
}

type submitPracticeReq struct {
	Question practice.Question `json:"question"`
	Answer   string            `json:"answer"`
}

// SubmitPracticeAnswer grades one practice attempt.
func (h *Handle) SubmitPracticeAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req submitPracticeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question.QuestionText) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	fb := h.gen.CheckAnswer(r.Context(), req.Question, req.Answer, h.t.Verify)
	writeJSON(w, http.StatusOK, fb)
}

package handle

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"test-analyzer/api/internal/analyze"
	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/practice"
	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/store"
	"test-analyzer/api/internal/verify"
)

// cacheMaxAge bounds how long a cached extraction for an image hash counts
// as fresh.
const cacheMaxAge = 24 * time.Hour

type Timeouts struct {
	OCR     time.Duration
	Verify  time.Duration
	Analyze time.Duration
}

type Handle struct {
	log *zap.SugaredLogger

	rec   *recognize.Adapter
	ext   *extract.Engine
	match *verify.Matcher
	anz   *analyze.Analyzer
	gen   *practice.Generator

	// Repos are nil when no DATABASE_URL is configured; every handler
	// works without them.
	extractions *store.ExtractionRepo
	reports     *store.ReportRepo

	t Timeouts
}

func New(
	log *zap.SugaredLogger,
	rec *recognize.Adapter,
	ext *extract.Engine,
	match *verify.Matcher,
	anz *analyze.Analyzer,
	gen *practice.Generator,
	extractions *store.ExtractionRepo,
	reports *store.ReportRepo,
	t Timeouts,
) *Handle {
	return &Handle{
		log:         log,
		rec:         rec,
		ext:         ext,
		match:       match,
		anz:         anz,
		gen:         gen,
		extractions: extractions,
		reports:     reports,
		t:           t,
	}
}

// Register wires every route onto the mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/upload-test", h.UploadTest)
	mux.HandleFunc("/api/analyze-text", h.AnalyzeText)
	mux.HandleFunc("/api/analyze-mistakes", h.AnalyzeMistakes)
	mux.HandleFunc("/api/generate-practice", h.GeneratePractice)
	mux.HandleFunc("/api/submit-practice-answer", h.SubmitPracticeAnswer)
	mux.HandleFunc("/healthz", h.Health)
}

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"go.uber.org/zap"

	"test-analyzer/api/internal/analyze"
	"test-analyzer/api/internal/config"
	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/handle"
	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/oracle/gemini"
	"test-analyzer/api/internal/oracle/openai"
	"test-analyzer/api/internal/practice"
	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/recognize/latex"
	"test-analyzer/api/internal/recognize/tesseract"
	"test-analyzer/api/internal/recognize/yandex"
	"test-analyzer/api/internal/store"
	"test-analyzer/api/internal/verify"
)

func main() {
	cfg := config.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	// Oracle: first configured provider wins.
	orc := oracle.Pick(
		openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
	)
	if orc == nil {
		logger.Warnw("no oracle configured; extraction falls back to the heuristic pass only")
	}

	// Recognition engines. Each is optional: a missing credential just
	// removes that engine from the pool.
	var engines []recognize.Engine
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		engines = append(engines, yandex.New(cfg.YCOAuthToken, cfg.YCFolderID))
	}
	engines = append(engines, tesseract.New("eng"))

	var latexEngine recognize.Engine
	if cfg.GeminiAPIKey != "" {
		latexEngine = latex.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	rec := recognize.NewAdapter(logger, orc, latexEngine, engines...)
	ext := extract.New(logger, orc, cfg.OraclePassTimeout)
	match := verify.NewMatcher(logger, orc)
	match.AcceptConfidence = cfg.AcceptConfidence
	anz := analyze.New(logger, orc)
	gen := practice.NewGenerator(logger, orc)

	// Postgres is optional: without a DSN the pipeline still runs, only
	// caching and report storage are off.
	var extractions *store.ExtractionRepo
	var reports *store.ReportRepo
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("sql.Open", "err", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(ctx); err != nil {
			logger.Warnw("db unreachable, storage disabled", "err", err)
		} else if err := store.EnsureSchema(ctx, db); err != nil {
			logger.Warnw("schema setup failed, storage disabled", "err", err)
		} else {
			extractions = store.NewExtractionRepo(db)
			reports = store.NewReportRepo(db)
			logger.Infow("db connected")
		}
		cancel()
	}

	h := handle.New(logger, rec, ext, match, anz, gen, extractions, reports, handle.Timeouts{
		OCR:     cfg.OCRTimeout,
		Verify:  cfg.VerifyTimeout,
		Analyze: cfg.AnalyzeTimeout,
	})

	mux := http.NewServeMux()
	h.Register(mux)

	addr := ":" + cfg.Port
	logger.Infow("test-analyzer listening", "addr", addr)
	logger.Fatalw("server stopped", "err", http.ListenAndServe(addr, mux))
}

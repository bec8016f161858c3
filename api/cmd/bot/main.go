package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"test-analyzer/api/internal/analyze"
	"test-analyzer/api/internal/config"
	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/oracle/gemini"
	"test-analyzer/api/internal/oracle/openai"
	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/recognize/latex"
	"test-analyzer/api/internal/recognize/tesseract"
	"test-analyzer/api/internal/recognize/yandex"
	"test-analyzer/api/internal/telegram"
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

	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		logger.Fatalw("TELEGRAM_BOT_TOKEN is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatalw("telegram connect", "err", err)
	}
	bot.Debug = false

	orc := oracle.Pick(
		openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
	)

	var engines []recognize.Engine
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		engines = append(engines, yandex.New(cfg.YCOAuthToken, cfg.YCFolderID))
	}
	engines = append(engines, tesseract.New("eng"))

	var latexEngine recognize.Engine
	if cfg.GeminiAPIKey != "" {
		latexEngine = latex.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	match := verify.NewMatcher(logger, orc)
	match.AcceptConfidence = cfg.AcceptConfidence

	r := &telegram.Router{
		Bot:   bot,
		Rec:   recognize.NewAdapter(logger, orc, latexEngine, engines...),
		Ext:   extract.New(logger, orc, cfg.OraclePassTimeout),
		Match: match,
		Anz:   analyze.New(logger, orc),
		Log:   logger,

		OCRTimeout:     cfg.OCRTimeout,
		VerifyTimeout:  cfg.VerifyTimeout,
		AnalyzeTimeout: cfg.AnalyzeTimeout,
	}

	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := "0.0.0.0:" + cfg.Port
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(addr, bot, r, webhookURL, logger)
	} else {
		startPollingMode(addr, bot, r, logger)
	}
}

func startWebhookMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, logger *zap.SugaredLogger) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		logger.Fatalw("webhook config", "err", err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		logger.Fatalw("webhook register", "err", err)
	}

	// ListenForWebhook registers on the DefaultServeMux.
	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(upd)
		}
		logger.Infow("webhook updates channel closed")
	}()

	logger.Infow("webhook listening", "addr", addr, "path", path)
	logger.Fatalw("server stopped", "err", http.ListenAndServe(addr, nil))
}

func startPollingMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, logger *zap.SugaredLogger) {
	go func() {
		logger.Infow("health server listening", "addr", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Fatalw("health server", "err", err)
		}
	}()

	runPolling(context.Background(), bot, logger, r.HandleUpdate)
}

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	if strings.Contains(strings.ToLower(err.Error()), "too many requests") {
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, logger *zap.SugaredLogger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			logger.Infow("polling stopped", "reason", ctx.Err())
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			logger.Warnw("polling error", "err", err, "retry_in", d)
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Package telegram is the photo-in / diagnosis-out bot surface over the
// same pipeline the HTTP API uses.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"test-analyzer/api/internal/analyze"
	"test-analyzer/api/internal/extract"
	"test-analyzer/api/internal/recognize"
	"test-analyzer/api/internal/textnorm"
	"test-analyzer/api/internal/verify"
)

const downloadTimeout = 30 * time.Second

type Router struct {
	Bot   *tgbotapi.BotAPI
	Rec   *recognize.Adapter
	Ext   *extract.Engine
	Match *verify.Matcher
	Anz   *analyze.Analyzer
	Log   *zap.SugaredLogger

	OCRTimeout     time.Duration
	VerifyTimeout  time.Duration
	AnalyzeTimeout time.Duration
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}

	switch {
	case msg.IsCommand():
		r.handleCommand(msg)
	case len(msg.Photo) > 0:
		r.handlePhoto(msg)
	case strings.TrimSpace(msg.Text) != "":
		r.handleText(msg)
	}
}

func (r *Router) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		r.reply(msg.Chat.ID, "Send me a photo of a completed test (or paste the work as text) and I'll read the answers, check them and explain the mistakes.")
	default:
		r.reply(msg.Chat.ID, "Unknown command. Send a photo of a test or /help.")
	}
}

func (r *Router) handlePhoto(msg *tgbotapi.Message) {
	ctx := context.Background()

	// Largest resolution is last in the slice.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	img, err := r.downloadPhoto(ctx, fileID)
	if err != nil {
		r.Log.Warnw("photo download failed", "chat", msg.Chat.ID, "err", err)
		r.reply(msg.Chat.ID, "I couldn't download that photo, please try again.")
		return
	}

	r.reply(msg.Chat.ID, "Reading the photo...")

	content := r.Rec.ExtractContent(ctx, img, r.OCRTimeout)
	rawText := textnorm.Clean(content.FullContent)
	r.respondWithAnalysis(ctx, msg.Chat.ID, rawText)
}

func (r *Router) handleText(msg *tgbotapi.Message) {
	r.respondWithAnalysis(context.Background(), msg.Chat.ID, textnorm.Clean(msg.Text))
}

func (r *Router) respondWithAnalysis(ctx context.Context, chatID int64, rawText string) {
	qa := r.Ext.Run(ctx, rawText)
	if len(qa.Answers) == 0 {
		text := "I couldn't pick out any answers."
		if strings.TrimSpace(rawText) != "" {
			text += " Here is what I could read:\n\n" + rawText
		}
		r.reply(chatID, text)
		return
	}

	verifications := r.Match.VerifyAll(ctx, qa.Answers, qa.Questions, nil, r.VerifyTimeout)
	final := r.Match.ApplyVerified(qa.Answers, verifications)
	report := r.Anz.AnalyzeMistakes(ctx, qa.Questions, final, nil, r.AnalyzeTimeout)

	r.reply(chatID, formatReport(final, verifications, report))
}

func (r *Router) downloadPhoto(ctx context.Context, fileID string) (image.Image, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}

	sub, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(sub, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

func formatReport(final map[string]string, verifications map[string]verify.Verification, report analyze.Report) string {
	var b strings.Builder
	b.WriteString("Here's what I found:\n\n")
	for _, key := range extract.SortKeys(mapKeys(final)) {
		fmt.Fprintf(&b, "Q%s: %s", key, final[key])
		if v, ok := verifications[key]; ok {
			switch v.MatchResult {
			case "correct":
				b.WriteString(" ✅")
			case "incorrect":
				b.WriteString(" ❌")
			}
		}
		b.WriteString("\n")
	}
	if report.Summary != "" {
		b.WriteString("\n" + report.Summary + "\n")
	}
	for _, m := range report.Mistakes {
		fmt.Fprintf(&b, "\nQ%d: %s\nFix: %s\n", m.QuestionNumber, m.Description, m.HowToFix)
	}
	return b.String()
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (r *Router) reply(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.Log.Warnw("telegram send failed", "chat", chatID, "err", err)
	}
}

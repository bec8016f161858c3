package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

// minTextLen gates the escalation passes: below this there is nothing more
// aggressive prompting could recover.
const minTextLen = 5

type oracleStrategy struct {
	name   string
	orc    oracle.Client
	prompt string // fmt template with one %s for the content
	// truncate caps the content fed to the oracle; 0 means no cap.
	truncate int
	// gated marks escalation passes that only run on non-trivial input.
	gated bool
}

func (s *oracleStrategy) Name() string { return s.name }

func (s *oracleStrategy) Extract(ctx context.Context, text string) (QA, error) {
	if s.orc == nil || !s.orc.Available() {
		return emptyQA(), nil
	}
	if s.gated && len(text) <= minTextLen {
		return emptyQA(), nil
	}
	if s.truncate > 0 && len(text) > s.truncate {
		cut := s.truncate
		// Never split a multi-byte rune (math symbols are common here).
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	out, err := s.orc.Complete(ctx, extractionSystem, fmt.Sprintf(s.prompt, text), oracle.Options{
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return emptyQA(), fmt.Errorf("%s pass: %w", s.name, err)
	}
	return decodeQA(out), nil
}

// decodeQA parses the oracle's JSON, recovering an embedded object when the
// model wrapped it in prose. Undecodable output yields an empty QA; the
// cascade continues.
func decodeQA(out string) QA {
	out = util.StripCodeFences(strings.TrimSpace(out))
	var qa QA
	if err := json.Unmarshal([]byte(out), &qa); err != nil {
		inner := util.ExtractJSONObject(out)
		if inner == "" {
			return emptyQA()
		}
		if err := json.Unmarshal([]byte(inner), &qa); err != nil {
			return emptyQA()
		}
	}
	if qa.Questions == nil {
		qa.Questions = map[string]string{}
	}
	if qa.Answers == nil {
		qa.Answers = map[string]string{}
	}
	return sanitize(qa)
}

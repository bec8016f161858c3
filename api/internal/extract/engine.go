package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"test-analyzer/api/internal/oracle"
)

// Engine runs the extraction cascade. Passes are strictly sequential — each
// escalation prompt assumes the prior pass failed — and the first pass that
// yields any answers wins.
type Engine struct {
	strategies  []Strategy
	passTimeout time.Duration
	log         *zap.SugaredLogger
}

// New builds the standard five-pass cascade: structured, fallback, minimal,
// desperate, then the deterministic heuristic scan.
func New(log *zap.SugaredLogger, orc oracle.Client, passTimeout time.Duration) *Engine {
	return NewWithStrategies(log, passTimeout,
		&oracleStrategy{name: "structured", orc: orc, prompt: structuredPrompt},
		&oracleStrategy{name: "fallback", orc: orc, prompt: fallbackPrompt, gated: true},
		&oracleStrategy{name: "minimal", orc: orc, prompt: minimalPrompt, truncate: 1000, gated: true},
		&oracleStrategy{name: "desperate", orc: orc, prompt: desperatePrompt, truncate: 2000, gated: true},
		heuristicStrategy{},
	)
}

func NewWithStrategies(log *zap.SugaredLogger, passTimeout time.Duration, strategies ...Strategy) *Engine {
	if passTimeout <= 0 {
		passTimeout = 40 * time.Second
	}
	return &Engine{
		strategies:  strategies,
		passTimeout: passTimeout,
		log:         log,
	}
}

// Run executes the cascade on combined recognized (or pasted) text. A pass
// timeout or error is logged and degrades to an empty result for that pass;
// later passes can still succeed. With every pass exhausted the result is an
// empty QA — the caller surfaces the raw text to the user instead of
// failing.
func (e *Engine) Run(ctx context.Context, text string) QA {
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			e.log.Warnw("extraction cancelled", "err", err)
			break
		}

		sub, cancel := context.WithTimeout(ctx, e.passTimeout)
		qa, err := s.Extract(sub, text)
		cancel()

		if err != nil {
			e.log.Warnw("extraction pass failed", "pass", s.Name(), "err", err)
			continue
		}
		if len(qa.Answers) > 0 {
			e.log.Infow("extraction pass succeeded",
				"pass", s.Name(), "questions", len(qa.Questions), "answers", len(qa.Answers))
			return qa
		}
		e.log.Infow("extraction pass empty", "pass", s.Name())
	}
	return emptyQA()
}

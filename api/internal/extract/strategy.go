// Package extract turns recognized test content into question and answer
// maps. The engine runs an ordered cascade of strategies, each more
// aggressive than the last, and stops at the first one that yields answers.
package extract

import "context"

// QA holds one pass's result. Invariant: every Answers key also exists in
// Questions; decode drops violating entries.
type QA struct {
	Questions map[string]string `json:"questions"`
	Answers   map[string]string `json:"user_answers"`
}

func emptyQA() QA {
	return QA{Questions: map[string]string{}, Answers: map[string]string{}}
}

// Strategy is one extraction pass. A strategy that does not apply (gated on
// input length, missing oracle credentials) returns an empty QA and nil
// error; the engine then continues down the cascade.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, text string) (QA, error)
}

// sanitize enforces the QA invariant and trims degenerate entries.
func sanitize(qa QA) QA {
	out := emptyQA()
	for k, q := range qa.Questions {
		if k == "" {
			continue
		}
		out.Questions[k] = q
	}
	for k, a := range qa.Answers {
		if a == "" {
			continue
		}
		if _, ok := out.Questions[k]; !ok {
			// An answer without a question is an extraction artifact.
			continue
		}
		out.Answers[k] = a
	}
	return out
}

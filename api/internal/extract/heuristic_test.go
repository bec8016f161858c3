package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicSolveForX(t *testing.T) {
	text := "Question 1: Solve for x: 2x + 3 = 7\n2x + 3 = 7\n2x = 4\nx = 2"
	qa := HeuristicExtract(text)

	require.Contains(t, qa.Questions, "1")
	assert.Equal(t, "2", qa.Answers["1"])
}

func TestHeuristicDomainRestriction(t *testing.T) {
	text := "Question 9a. State the domain: x ≠ -1 {x ∈ ℝ | x ≠ -1} ✓"
	qa := HeuristicExtract(text)

	require.Contains(t, qa.Answers, "9a")
	assert.Contains(t, qa.Answers["9a"], "x ≠ -1")
	// The checkmark is presentation, not part of the answer.
	assert.NotContains(t, qa.Answers["9a"], "✓")
}

func TestHeuristicSubParts(t *testing.T) {
	text := `Question 3: Let f(x) = x + 1 and g(x) = x - 2
a) f(2) = 3
b) g(5) = 3`
	qa := HeuristicExtract(text)

	assert.Contains(t, qa.Questions, "3")
	assert.Equal(t, "3", qa.Answers["3a"])
	assert.Equal(t, "3", qa.Answers["3b"])
}

func TestHeuristicLabeledStepIsNotSubPart(t *testing.T) {
	// "c:" is a labeled work step, not sub-part c — sub-parts start at "a"
	// and run in sequence.
	text := `Question 7: Differentiate y = (x^2+1)^3
c: apply chain rule
y' = 6x(x^2+1)^2`
	qa := HeuristicExtract(text)

	assert.NotContains(t, qa.Questions, "7c")
	assert.Equal(t, "6x(x^2+1)^2", qa.Answers["7"])
}

func TestHeuristicOutOfSequenceSubPartIsWork(t *testing.T) {
	text := `Question 2: Evaluate
a) f(1) = 4
x: substitute back
g = 9`
	qa := HeuristicExtract(text)

	assert.NotContains(t, qa.Questions, "2x")
	assert.Equal(t, "9", qa.Answers["2a"], "the stray label stays part of sub-part a's work")
}

func TestHeuristicSubPartsContinueAfterMarkerWithPart(t *testing.T) {
	// "Question 9a" makes "b)" the next expected sub-part.
	text := `Question 9a: f(0) = 1
b) f(1) = 2`
	qa := HeuristicExtract(text)

	assert.Equal(t, "1", qa.Answers["9a"])
	assert.Equal(t, "2", qa.Answers["9b"])
}

func TestHeuristicAnswerFromLastWorkLine(t *testing.T) {
	text := "Q2) Simplify\nx^2 + 2x + 1 = (x+1)^2\nwrong = 5\nx = 7"
	qa := HeuristicExtract(text)
	assert.Equal(t, "7", qa.Answers["2"])
}

func TestHeuristicSetNotationWins(t *testing.T) {
	// Set braces outrank the equality on the same line.
	text := "Question 4: Solve\nS = {1, 2, 3}"
	qa := HeuristicExtract(text)
	assert.Equal(t, "{1, 2, 3}", qa.Answers["4"])
}

func TestHeuristicNoMarkerNoOutput(t *testing.T) {
	qa := HeuristicExtract("just some prose with x = 2 but no question numbering follows the rules? = maybe")
	assert.Empty(t, qa.Answers)
}

func TestHeuristicNoDerivableAnswer(t *testing.T) {
	text := "Question 5: Explain your reasoning\nbecause triangles"
	qa := HeuristicExtract(text)

	assert.Contains(t, qa.Questions, "5")
	_, ok := qa.Answers["5"]
	assert.False(t, ok, "no =, braces or inequality means no answer")
}

func TestHeuristicIdempotent(t *testing.T) {
	text := "Question 1: Solve for x: 2x + 3 = 7\n2x = 4\nx = 2\nQuestion 9a. {x ∈ ℝ | x ≠ -1}"
	first := HeuristicExtract(text)
	second := HeuristicExtract(text)
	assert.Equal(t, first, second)
}

func TestHeuristicAnswersSubsetOfQuestions(t *testing.T) {
	text := "Q1) x = 5\nQ2) y = 6\nstray = 7"
	qa := HeuristicExtract(text)
	for key := range qa.Answers {
		assert.Contains(t, qa.Questions, key)
	}
}

func TestHeuristicSkipsCompoundRelations(t *testing.T) {
	// != must not be treated as a final equality.
	text := "Question 6: Solve\nx != 3\nx = 4"
	qa := HeuristicExtract(text)
	assert.Equal(t, "4", qa.Answers["6"])
}

package extract

const extractionSystem = `You extract questions and final answers from transcribed student test content. The transcription comes from OCR of handwriting and may be noisy. Always return valid JSON.`

const structuredPrompt = `Analyze this test content and extract all questions and their corresponding answers.

CRITICAL: The student's FINAL ANSWER is ALWAYS the LAST part of their work for each question.

For EACH question, identify:
1. Where the question starts (Q1, Q2, Q9a, Q9b, etc. — a number, optionally followed by a lowercase letter for sub-parts)
2. ALL the work/steps the student wrote for that question
3. The VERY LAST thing written for that question — THIS IS THE ANSWER

The final answer can appear as:
- The last line of work — usually the final value or expression
- After the last equals sign — the value after "=" in the last calculation
- Boxed content — answers drawn in boxes (almost always final answers)
- Checkmarked content — answers with checkmarks (✓) nearby
- Set notation — {x ∈ ℝ | x ≠ -1} or {x | x ≠ -1}
- Mathematical constraints — "x ≠ -1", "x ≠ 2 + 4k, k ∈ ℤ"
- The final simplified expression

Content:
%s

Return as JSON:
{
    "questions": {"<question key>": "<question text>", ...},
    "user_answers": {"<question key>": "<final answer>", ...}
}
Use keys like "1", "2", "9a", "9b". Only include answers you actually found.`

const fallbackPrompt = `The previous extraction found no answers. Be VERY AGGRESSIVE now.

Scan this content for ANYTHING that could be a question and ANYTHING that could be a final answer:
- boxed answers
- checkmarked (✓) values
- set notation like {x ∈ ℝ | x ≠ -1}
- constraints like "x ≠ -1"
- any value after an equals sign
- any terminal value at the end of a block of work

Content:
%s

Return as JSON:
{
    "questions": {"<question key>": "<question text>", ...},
    "user_answers": {"<question key>": "<final answer>", ...}
}`

const minimalPrompt = `This OCR output is fragmentary. Extract ANYTHING resembling a question number and a final answer, even partial.
A bare number followed by symbols may be a question and its answer. Guess question keys ("1", "9a") where plausible.

Content (truncated):
%s

Return as JSON:
{
    "questions": {"<question key>": "<question text or fragment>", ...},
    "user_answers": {"<question key>": "<answer fragment>", ...}
}`

const desperatePrompt = `Last attempt. The content below is very noisy OCR of a handwritten test.
Extract ANY question/answer pair you can infer, however rough. Any number-like token starting a fragment is a question key; the value(s) near the end of that fragment are the answer. Do not return an empty result unless there is truly nothing.

Content (truncated):
%s

Return as JSON:
{
    "questions": {"<question key>": "<fragment>", ...},
    "user_answers": {"<question key>": "<answer>", ...}
}`

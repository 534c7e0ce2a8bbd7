package llm

import "fmt"

// ContradictionPrompt builds a strict JSON-only prompt asking the model
// whether two memory contents contradict each other. The ultra-strict
// framing keeps smaller local models from wrapping the JSON in prose or
// markdown fences; the parser tolerates it anyway.
func ContradictionPrompt(content1, content2 string) string {
	return fmt.Sprintf(`TASK: Decide whether the two statements below contradict each other.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanation outside the JSON.

A contradiction means the two statements cannot both be true. Statements that
merely discuss different topics, or that are both true in different contexts,
do NOT contradict.

REQUIRED JSON STRUCTURE:
{"contradicts": true or false, "confidence": integer 0-100, "explanation": "one sentence"}

STATEMENT 1:
%s

STATEMENT 2:
%s

JSON:`, content1, content2)
}

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParseFailure indicates that a classification response could not be
// decoded into a ContradictionJudgment. Callers distinguish this from a
// parsed "no contradiction" answer; the detector currently folds both into
// non-contradictory but logs the parse failure.
var ErrParseFailure = errors.New("unparseable classification response")

// ContradictionJudgment is the strictly-decoded result of a classification
// response. Confidence is already clamped to [0,100].
type ContradictionJudgment struct {
	Contradicts bool
	Confidence  int
	Explanation string
}

// rawJudgment mirrors the JSON the model is asked to produce. Confidence is
// kept raw because models return it as a number, a quoted number, a float,
// or not at all.
type rawJudgment struct {
	Contradicts bool            `json:"contradicts"`
	Confidence  json.RawMessage `json:"confidence"`
	Explanation string          `json:"explanation"`
}

// ParseContradictionResponse decodes a classification response into a
// tagged judgment. It tolerates markdown fences and prose around the JSON
// object; it returns ErrParseFailure only when no valid JSON object with a
// boolean "contradicts" field can be extracted.
//
// Confidence values outside [0,100], non-numeric values, and missing values
// are clamped or defaulted to 0 rather than propagated.
func ParseContradictionResponse(raw string) (*ContradictionJudgment, error) {
	cleanJSON := extractJSON(raw)

	var resp rawJudgment
	if err := json.Unmarshal([]byte(cleanJSON), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	return &ContradictionJudgment{
		Contradicts: resp.Contradicts,
		Confidence:  clampConfidence(resp.Confidence),
		Explanation: resp.Explanation,
	}, nil
}

// clampConfidence converts a raw JSON confidence value into an integer in
// [0,100]. Missing, non-numeric, and malformed values default to 0; numeric
// values are truncated toward zero and clamped into range.
func clampConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	c := int(f)
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// extractJSON extracts the first complete JSON object from text that may
// contain extra prose or markdown fences. Brace matching skips braces inside
// strings so explanations containing "{" do not break extraction.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // let the JSON parser produce the error
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}

	return text
}

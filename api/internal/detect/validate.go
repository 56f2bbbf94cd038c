package detect

import (
	"encoding/json"
	"math"
	"strings"

	"ai-detector/api/internal/detect/types"
	"ai-detector/api/internal/util"
)

// ParseResult разбирает текст модели в AnalysisResult.
// Невалидный JSON - ResponseFormat, не та структура - SchemaViolation.
func ParseResult(raw string) (types.AnalysisResult, error) {
	txt := util.StripCodeFences(strings.TrimSpace(raw))

	var doc any
	if err := json.Unmarshal([]byte(txt), &doc); err != nil {
		return types.AnalysisResult{}, types.NewError(types.KindResponseFormat, "unparseable response", err)
	}
	// разобралось, но не объект: обязательных полей нет
	var obj map[string]json.RawMessage
	if json.Unmarshal([]byte(txt), &obj) != nil {
		return types.AnalysisResult{}, violation(types.FieldIsAIGenerated + " must be a boolean")
	}

	var out types.AnalysisResult

	flag, ok := obj[types.FieldIsAIGenerated]
	if !ok || json.Unmarshal(flag, &out.IsAIGenerated) != nil || !isBool(flag) {
		return types.AnalysisResult{}, violation(types.FieldIsAIGenerated + " must be a boolean")
	}

	score, ok := obj[types.FieldConfidenceScore]
	var f float64
	if !ok || json.Unmarshal(score, &f) != nil || isNull(score) {
		return types.AnalysisResult{}, violation(types.FieldConfidenceScore + " must be a number")
	}
	if f < types.MinConfidence || f > types.MaxConfidence || math.IsNaN(f) {
		return types.AnalysisResult{}, violation(types.FieldConfidenceScore + " out of range 0..100")
	}
	out.ConfidenceScore = int(math.Round(f))

	reasoning, ok := obj[types.FieldReasoning]
	if !ok || json.Unmarshal(reasoning, &out.Reasoning) != nil || isNull(reasoning) {
		return types.AnalysisResult{}, violation(types.FieldReasoning + " must be a string")
	}

	signs, ok := obj[types.FieldTelltaleSigns]
	if !ok || json.Unmarshal(signs, &out.TelltaleSigns) != nil || isNull(signs) {
		return types.AnalysisResult{}, violation(types.FieldTelltaleSigns + " must be an array of strings")
	}
	// длину списка нормализуем: больше 5 - режем
	if len(out.TelltaleSigns) > types.MaxSigns {
		out.TelltaleSigns = out.TelltaleSigns[:types.MaxSigns]
	}

	return out, nil
}

func violation(msg string) error {
	return types.NewError(types.KindSchemaViolation, msg, nil)
}

func isBool(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "true" || s == "false"
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

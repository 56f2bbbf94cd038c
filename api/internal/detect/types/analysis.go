package types

// AnalysisResult - вердикт модели по изображению (строго по схеме ответа).
type AnalysisResult struct {
	IsAIGenerated   bool     `json:"is_ai_generated"`
	ConfidenceScore int      `json:"confidence_score"` // 0..100
	Reasoning       string   `json:"reasoning"`        // одно предложение
	TelltaleSigns   []string `json:"telltale_signs"`   // 3–5 пунктов
}

// AnalyzeRequest - то, что уходит в движок: инструкция + картинка в base64.
type AnalyzeRequest struct {
	APIKey   string
	Prompt   string
	ImageB64 string
	MIMEType string
}

// Границы, которые запрашиваются у модели через схему.
const (
	MinConfidence = 0
	MaxConfidence = 100
	MinSigns      = 3
	MaxSigns      = 5
)

// Имена полей ответа.
const (
	FieldIsAIGenerated   = "is_ai_generated"
	FieldConfidenceScore = "confidence_score"
	FieldReasoning       = "reasoning"
	FieldTelltaleSigns   = "telltale_signs"
)

// RequiredFields - все четыре поля обязательны.
var RequiredFields = []string{
	FieldIsAIGenerated,
	FieldConfidenceScore,
	FieldReasoning,
	FieldTelltaleSigns,
}

// Описания полей для схемы (одинаковые для gemini и openai).
const (
	DescIsAIGenerated   = "Whether the image is determined to be AI-generated."
	DescConfidenceScore = "A confidence score from 0 to 100 on the determination."
	DescReasoning       = "A brief, one-sentence explanation for the determination."
	DescTelltaleSign    = "A specific visual artifact or clue found in the image that supports the reasoning."
	DescTelltaleSigns   = "A list of 3-5 specific visual clues or artifacts that support the determination."
)

package telegram

import (
	"fmt"
	"strings"

	"ai-detector/api/internal/detect/types"
)

const meterCells = 10

// formatVerdict - вердикт для Markdown-сообщения.
func formatVerdict(res types.AnalysisResult) string {
	var b strings.Builder
	if res.IsAIGenerated {
		b.WriteString("🤖 *Likely AI-Generated*\n")
	} else {
		b.WriteString("📷 *Likely Human-Made*\n")
	}
	fmt.Fprintf(&b, "Confidence: %s %d%%\n", meter(res.ConfidenceScore), res.ConfidenceScore)

	if s := strings.TrimSpace(res.Reasoning); s != "" {
		b.WriteString("\n*Reasoning*\n")
		b.WriteString(esc(s))
		b.WriteString("\n")
	}
	if len(res.TelltaleSigns) > 0 {
		b.WriteString("\n*Telltale signs*\n")
		for _, sign := range res.TelltaleSigns {
			b.WriteString("• ")
			b.WriteString(esc(strings.TrimSpace(sign)))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func meter(score int) string {
	filled := (score*meterCells + 50) / 100
	if filled < 0 {
		filled = 0
	}
	if filled > meterCells {
		filled = meterCells
	}
	return strings.Repeat("▰", filled) + strings.Repeat("▱", meterCells-filled)
}

// лёгкое экранирование для Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}

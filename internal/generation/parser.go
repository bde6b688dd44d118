package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"devotional-server/internal/models"
)

// seriesPayload — JSON-ответ модели для партии дней.
type seriesPayload struct {
	Title string       `json:"title"`
	Days  []dayPayload `json:"days"`
}

type dayPayload struct {
	DayNumber           int      `json:"dayNumber"`
	Title               string   `json:"title"`
	ScriptureReference  string   `json:"scriptureReference"`
	ScriptureText       string   `json:"scriptureText"`
	Body                string   `json:"body"`
	CrossReferences     []string `json:"crossReferences"`
	ReflectionQuestions []string `json:"reflectionQuestions"`
	ClosingPrayer       string   `json:"closingPrayer"`
}

// extractJSON вырезает JSON-объект из сырого ответа модели.
// Модели регулярно заворачивают JSON в code fences или дописывают текст вокруг.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// Убираем markdown-ограждения вида ```json ... ```
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object found in AI response")
	}
	return s[start : end+1], nil
}

// parseSeriesResponse парсит ответ модели в заголовок и список дней.
// Дни с пустым телом или без номера отбрасываются.
func parseSeriesResponse(raw string) (string, []models.DevotionalDay, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return "", nil, err
	}

	var payload seriesPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return "", nil, fmt.Errorf("failed to parse AI response JSON: %w", err)
	}

	days := make([]models.DevotionalDay, 0, len(payload.Days))
	for _, p := range payload.Days {
		if p.DayNumber <= 0 || strings.TrimSpace(p.Body) == "" {
			continue
		}
		days = append(days, models.DevotionalDay{
			DayNumber:           p.DayNumber,
			Title:               strings.TrimSpace(p.Title),
			ScriptureReference:  strings.TrimSpace(p.ScriptureReference),
			ScriptureText:       strings.TrimSpace(p.ScriptureText),
			Body:                strings.TrimSpace(p.Body),
			CrossReferences:     p.CrossReferences,
			ReflectionQuestions: p.ReflectionQuestions,
			ClosingPrayer:       strings.TrimSpace(p.ClosingPrayer),
		})
	}

	if len(days) == 0 {
		return "", nil, fmt.Errorf("AI response contained no usable days")
	}

	return strings.TrimSpace(payload.Title), days, nil
}

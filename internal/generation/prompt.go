package generation

import (
	"fmt"
	"strings"

	"devotional-server/internal/models"
)

// systemPromptTemplate — системный промт генератора серии.
// Модель обязана отвечать строго одним JSON-объектом.
const systemPromptTemplate = `You are a thoughtful devotional writer for a Christian devotional app.
You write warm, scripturally grounded daily devotionals tailored to what the reader is going through.

Rules:
- Use the %s Bible translation for all scripture quotations.
- Every day must center on a different scripture passage.
- Do not reuse any of the recently used scripture references listed by the user.
- Each day's body should take about %s to read.
- Respond with a single JSON object and nothing else. No markdown, no code fences, no commentary.

Response format:
{
  "title": "series title",
  "days": [
    {
      "dayNumber": 1,
      "title": "day title",
      "scriptureReference": "Book C:V-V",
      "scriptureText": "quoted passage",
      "body": "devotional body",
      "crossReferences": ["Book C:V"],
      "reflectionQuestions": ["question"],
      "closingPrayer": "short prayer"
    }
  ]
}`

// buildSystemPrompt собирает системный промт под профиль пользователя.
func buildSystemPrompt(profile *models.UserProfile) string {
	translation := profile.Translation
	if translation == "" {
		translation = "NIV"
	}
	duration := profile.ReadingDuration
	if duration == "" {
		duration = "5 minutes"
	}
	return fmt.Sprintf(systemPromptTemplate, translation, duration)
}

// buildInitialUserInput формирует пользовательскую часть запроса для первой партии дней.
func buildInitialUserInput(profile *models.UserProfile, fromDay, toDay, totalDays int, recent []models.ScriptureRef) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create days %d through %d of a %d-day devotional series.\n\n", fromDay, toDay, totalDays)
	fmt.Fprintf(&b, "The reader is seeking: %s\n", profile.SeekingText)
	if profile.EmotionalState != "" {
		fmt.Fprintf(&b, "Current emotional state: %s\n", profile.EmotionalState)
	}
	if profile.Theme != "" {
		fmt.Fprintf(&b, "Theme: %s\n", profile.Theme)
	}
	if profile.Subject != "" {
		fmt.Fprintf(&b, "Subject focus: %s\n", profile.Subject)
	}
	if profile.Language != "" {
		fmt.Fprintf(&b, "Write in language: %s\n", profile.Language)
	}

	writeRecentScriptures(&b, recent)
	return b.String()
}

// buildContinuationUserInput формирует запрос на догенерацию недостающих дней
// существующей серии, с контекстом уже готовых дней.
func buildContinuationUserInput(d *models.Devotional, profile *models.UserProfile, missingDays []int, recent []models.ScriptureRef) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Continue the existing %d-day devotional series titled %q.\n", d.TotalDays, d.Title)
	fmt.Fprintf(&b, "Generate only these missing days: %s. Keep dayNumber values exactly as listed.\n\n", joinInts(missingDays))
	fmt.Fprintf(&b, "The reader is seeking: %s\n", seekingText(d, profile))

	if len(d.Days) > 0 {
		b.WriteString("\nDays already written (do not repeat their passages or themes):\n")
		for _, day := range d.Days {
			fmt.Fprintf(&b, "- Day %d: %s (%s)\n", day.DayNumber, day.Title, day.ScriptureReference)
		}
	}

	writeRecentScriptures(&b, recent)
	return b.String()
}

func seekingText(d *models.Devotional, profile *models.UserProfile) string {
	if d.SeekingText != "" {
		return d.SeekingText
	}
	if profile != nil {
		return profile.SeekingText
	}
	return ""
}

func writeRecentScriptures(b *strings.Builder, recent []models.ScriptureRef) {
	if len(recent) == 0 {
		return
	}
	b.WriteString("\nRecently used scripture references (avoid these):\n")
	for _, ref := range recent {
		fmt.Fprintf(b, "- %s\n", ref.Reference)
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

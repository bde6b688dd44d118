package models

import (
	"time"

	"github.com/google/uuid"
)

// Devotional представляет многодневную серию девоционалов, сгенерированную для пользователя.
// Запись создается в момент появления первого дня и заголовка серии, не раньше.
type Devotional struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	Title      string          `json:"title"`
	TotalDays  int             `json:"total_days"`
	CurrentDay int             `json:"current_day"`
	Days       []DevotionalDay `json:"days"`
	// Денормализованный снимок контекста пользователя на момент генерации.
	SeekingText string    `json:"seeking_text,omitempty"`
	Translation string    `json:"translation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DevotionalDay — один день серии. DayNumber уникален внутри серии (1-based).
type DevotionalDay struct {
	DayNumber           int           `json:"day_number"`
	Title               string        `json:"title"`
	ScriptureReference  string        `json:"scripture_reference"`
	ScriptureText       string        `json:"scripture_text"`
	Body                string        `json:"body"`
	CrossReferences     []string      `json:"cross_references,omitempty"`
	ReflectionQuestions []string      `json:"reflection_questions,omitempty"`
	ClosingPrayer       string        `json:"closing_prayer"`
	IsRead              bool          `json:"is_read"`
	ReadAt              *time.Time    `json:"read_at,omitempty"`
}

// ScriptureRef — ссылка на место Писания, используется для исключения повторов
// в последующих генерациях.
type ScriptureRef struct {
	Reference   string `json:"reference"`
	Translation string `json:"translation,omitempty"`
}

// DayByNumber возвращает день с указанным номером или nil.
func (d *Devotional) DayByNumber(n int) *DevotionalDay {
	for i := range d.Days {
		if d.Days[i].DayNumber == n {
			return &d.Days[i]
		}
	}
	return nil
}

// HasDay сообщает, присутствует ли день с указанным номером.
func (d *Devotional) HasDay(n int) bool {
	return d.DayByNumber(n) != nil
}

// MissingDays возвращает номера дней от 1 до expectedTotal, которых еще нет в серии.
func (d *Devotional) MissingDays(expectedTotal int) []int {
	present := make(map[int]bool, len(d.Days))
	for _, day := range d.Days {
		present[day.DayNumber] = true
	}
	var missing []int
	for n := 1; n <= expectedTotal; n++ {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

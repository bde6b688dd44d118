package models

// UserProfile — неизменяемый вход генерации, собранный онбордингом.
// Ядро читает его и никогда не модифицирует.
type UserProfile struct {
	UserID           string `json:"user_id"`
	SeekingText      string `json:"seeking_text"`
	EmotionalState   string `json:"emotional_state,omitempty"`
	ReadingDuration  string `json:"reading_duration,omitempty"`
	DevotionalLength int    `json:"devotional_length"`
	Translation      string `json:"translation,omitempty"`
	Theme            string `json:"theme,omitempty"`
	Type             string `json:"type,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Language         string `json:"language,omitempty"`
}

// EffectiveLength возвращает запрошенную длину серии с разумным дефолтом.
func (p UserProfile) EffectiveLength() int {
	if p.DevotionalLength <= 0 {
		return 7
	}
	return p.DevotionalLength
}

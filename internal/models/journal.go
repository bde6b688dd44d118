package models

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry — запись дневника, привязанная к дню серии.
type JournalEntry struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	DevotionalID uuid.UUID `json:"devotional_id"`
	DayNumber    int       `json:"day_number"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Bookmark — закладка пользователя на день серии.
type Bookmark struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	DevotionalID uuid.UUID `json:"devotional_id"`
	DayNumber    int       `json:"day_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// Highlight — выделенный пользователем фрагмент текста дня.
type Highlight struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	DevotionalID uuid.UUID `json:"devotional_id"`
	DayNumber    int       `json:"day_number"`
	Text         string    `json:"text"`
	StartOffset  int       `json:"start_offset"`
	EndOffset    int       `json:"end_offset"`
	CreatedAt    time.Time `json:"created_at"`
}

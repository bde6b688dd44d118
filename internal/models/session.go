package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionStatus — статус сессии генерации.
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// GenerationSession — долговечная запись о текущей (или последней) попытке
// генерации. Единственное назначение — позволить перезапущенному приложению
// понять, была ли незавершенная работа, и продолжить с тем же devotional id.
type GenerationSession struct {
	UserID        string        `json:"user_id"`
	DevotionalID  *uuid.UUID    `json:"devotional_id,omitempty"`
	Status        SessionStatus `json:"status"`
	TotalDays     int           `json:"total_days"`
	GeneratedDays []int         `json:"generated_days,omitempty"`
	LastTitle     string        `json:"last_title,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AddGeneratedDays добавляет номера дней в набор произведенных. Повторные
// номера игнорируются: набор остается множеством.
func (s *GenerationSession) AddGeneratedDays(dayNumbers ...int) {
	present := make(map[int]bool, len(s.GeneratedDays))
	for _, n := range s.GeneratedDays {
		present[n] = true
	}
	for _, n := range dayNumbers {
		if n > 0 && !present[n] {
			s.GeneratedDays = append(s.GeneratedDays, n)
			present[n] = true
		}
	}
	sort.Ints(s.GeneratedDays)
}

// IsRecoverable сообщает, указывает ли сессия на незавершенную работу.
func (s *GenerationSession) IsRecoverable() bool {
	return s.Status == SessionStatusRunning && s.DevotionalID != nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// PushEventKind — тип события, уходящего во внешний notification-сервис.
type PushEventKind string

const (
	// PushEventFirstDayReady — первый день доступен, можно начинать чтение.
	PushEventFirstDayReady PushEventKind = "devotional_first_day_ready"
	// PushEventSeriesReady — серия сгенерирована полностью.
	PushEventSeriesReady PushEventKind = "devotional_series_ready"
)

// PushEvent — полезная нагрузка уведомления. Ядро решает только КОГДА отправить;
// доставка — забота консьюмера очереди.
type PushEvent struct {
	EventID      uuid.UUID     `json:"event_id"`
	Kind         PushEventKind `json:"kind"`
	UserID       string        `json:"user_id"`
	DevotionalID uuid.UUID     `json:"devotional_id"`
	Title        string        `json:"title"`
	TotalDays    int           `json:"total_days"`
	CreatedAt    time.Time     `json:"created_at"`
}

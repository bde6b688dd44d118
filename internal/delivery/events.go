package delivery

import "github.com/google/uuid"

// Типы событий прогресса, отправляемых клиенту в реальном времени.
const (
	EventGenerationStarted   = "generation_started"
	EventDayReady            = "day_ready"
	EventGenerationCompleted = "generation_completed"
	EventGenerationFailed    = "generation_failed"
)

// ProgressEvent — событие прогресса генерации для подключенного клиента.
type ProgressEvent struct {
	Type         string    `json:"type"`
	DevotionalID uuid.UUID `json:"devotionalId"`
	Title        string    `json:"title,omitempty"`
	DayNumber    int       `json:"dayNumber,omitempty"`
	DaysReady    int       `json:"daysReady"`
	TotalDays    int       `json:"totalDays"`
	Message      string    `json:"message,omitempty"`
}

// ProgressNotifier доставляет события прогресса пользователю (websocket и т.п.).
// Доставка best effort: UI в любом случае читает состояние из стора.
type ProgressNotifier interface {
	NotifyUser(userID string, event ProgressEvent)
}

// NopNotifier игнорирует все события. Для тестов и режимов без websocket.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(string, ProgressEvent) {}

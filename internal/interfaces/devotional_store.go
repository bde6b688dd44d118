package interfaces

import (
	"context"

	"github.com/google/uuid"

	"devotional-server/internal/models"
)

// DevotionalStore — единственный персистентный источник истины для серий
// девоционалов. Все компоненты читают и пишут исключительно через него.
type DevotionalStore interface {
	// AddDevotional вставляет новую серию. Возвращает ошибку при конфликте id.
	AddDevotional(ctx context.Context, d *models.Devotional) error

	// GetDevotional возвращает серию по id или models.ErrNotFound.
	GetDevotional(ctx context.Context, id uuid.UUID) (*models.Devotional, error)

	// ListDevotionals возвращает серии пользователя, новые первыми.
	ListDevotionals(ctx context.Context, userID string) ([]models.Devotional, error)

	// UpdateDevotionalDays заменяет список дней серии и, если title != nil,
	// ее заголовок и целевую длину. Остальные поля не трогает.
	UpdateDevotionalDays(ctx context.Context, id uuid.UUID, days []models.DevotionalDay, title *string, totalDays int) error

	// MarkDayAsRead помечает день прочитанным и продвигает currentDay.
	MarkDayAsRead(ctx context.Context, id uuid.UUID, dayNumber int) error

	// AddUsedScriptures дописывает ссылки в список недавно использованных мест Писания.
	AddUsedScriptures(ctx context.Context, userID string, refs []models.ScriptureRef) error

	// GetRecentScriptures возвращает до limit последних использованных ссылок.
	GetRecentScriptures(ctx context.Context, userID string, limit int) ([]models.ScriptureRef, error)

	// CurrentStreak возвращает длину текущей серии чтения в днях:
	// число подряд идущих календарных дат с хотя бы одним прочитанным днем,
	// заканчивающихся сегодня или вчера.
	CurrentStreak(ctx context.Context, userID string) (int, error)
}

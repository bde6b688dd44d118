package interfaces

import (
	"context"

	"devotional-server/internal/models"
)

// PushEventPublisher отправляет события во внешний notification-сервис.
// Вызовы fire-and-forget: ядро решает когда, доставка — чужая забота.
type PushEventPublisher interface {
	Publish(ctx context.Context, event models.PushEvent) error
}

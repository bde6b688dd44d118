package interfaces

import (
	"context"

	"devotional-server/internal/models"
)

// SessionRepository хранит сессию генерации пользователя (максимум одну).
type SessionRepository interface {
	// Get возвращает сессию пользователя или models.ErrNotFound.
	Get(ctx context.Context, userID string) (*models.GenerationSession, error)

	// Save сохраняет сессию целиком (last-writer-wins).
	Save(ctx context.Context, session *models.GenerationSession) error

	// Delete удаляет сессию. Отсутствие записи не считается ошибкой.
	Delete(ctx context.Context, userID string) error
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// Tracker ведет сессию генерации пользователя поверх SessionRepository.
// Сессия переживает перезапуск процесса и позволяет возобновить
// прерванную генерацию с места остановки.
type Tracker struct {
	repo   interfaces.SessionRepository
	logger *zap.Logger
}

// NewTracker создает трекер сессий генерации.
func NewTracker(repo interfaces.SessionRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		logger: logger.Named("SessionTracker"),
	}
}

// Start открывает новую running-сессию, затирая любую предыдущую.
func (t *Tracker) Start(ctx context.Context, userID string, devotionalID uuid.UUID, totalDays int) error {
	s := &models.GenerationSession{
		UserID:       userID,
		DevotionalID: &devotionalID,
		Status:       models.SessionStatusRunning,
		TotalDays:    totalDays,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := t.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to start generation session: %w", err)
	}
	t.logger.Info("Generation session started",
		zap.String("userID", userID),
		zap.String("devotionalID", devotionalID.String()),
		zap.Int("totalDays", totalDays),
	)
	return nil
}

// UpdateProgress дописывает сгенерированные дни в сессию. Повторные номера
// игнорируются, порядок нормализуется. Сессия, привязанная к другой серии,
// не трогается: отставший фоновый повтор старой серии не должен портить
// учет текущей.
func (t *Tracker) UpdateProgress(ctx context.Context, userID string, devotionalID uuid.UUID, title string, dayNumbers ...int) error {
	s, err := t.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoSessionToRecover
		}
		return fmt.Errorf("failed to load generation session: %w", err)
	}
	if s.DevotionalID == nil || *s.DevotionalID != devotionalID {
		return models.ErrNoSessionToRecover
	}

	s.AddGeneratedDays(dayNumbers...)
	if title != "" {
		s.LastTitle = title
	}
	s.UpdatedAt = time.Now().UTC()

	if err := t.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save session progress: %w", err)
	}
	return nil
}

// Complete помечает сессию завершенной, если она привязана к этой серии.
func (t *Tracker) Complete(ctx context.Context, userID string, devotionalID uuid.UUID) error {
	return t.setStatus(ctx, userID, devotionalID, models.SessionStatusCompleted, "")
}

// Fail помечает сессию неуспешной и сохраняет текст ошибки, если сессия
// привязана к этой серии.
func (t *Tracker) Fail(ctx context.Context, userID string, devotionalID uuid.UUID, errMsg string) error {
	return t.setStatus(ctx, userID, devotionalID, models.SessionStatusFailed, errMsg)
}

// Clear удаляет сессию пользователя.
func (t *Tracker) Clear(ctx context.Context, userID string) error {
	if err := t.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear generation session: %w", err)
	}
	return nil
}

// Recover возвращает восстановимую сессию (running с привязанной серией)
// или models.ErrNoSessionToRecover.
func (t *Tracker) Recover(ctx context.Context, userID string) (*models.GenerationSession, error) {
	s, err := t.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoSessionToRecover
		}
		return nil, fmt.Errorf("failed to load generation session: %w", err)
	}
	if !s.IsRecoverable() {
		return nil, models.ErrNoSessionToRecover
	}
	t.logger.Info("Recoverable generation session found",
		zap.String("userID", userID),
		zap.Int("generatedDays", len(s.GeneratedDays)),
		zap.Int("totalDays", s.TotalDays),
	)
	return s, nil
}

// Get возвращает текущую сессию как есть, без фильтра восстановимости.
func (t *Tracker) Get(ctx context.Context, userID string) (*models.GenerationSession, error) {
	return t.repo.Get(ctx, userID)
}

func (t *Tracker) setStatus(ctx context.Context, userID string, devotionalID uuid.UUID, status models.SessionStatus, errMsg string) error {
	s, err := t.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil // сессии нет — фиксировать нечего
		}
		return fmt.Errorf("failed to load generation session: %w", err)
	}
	if s.DevotionalID == nil || *s.DevotionalID != devotionalID {
		// Сессия уже про другую серию: итог этой ее не касается
		t.logger.Debug("Skipping status update for foreign session",
			zap.String("userID", userID),
			zap.String("devotionalID", devotionalID.String()),
		)
		return nil
	}

	s.Status = status
	s.ErrorMessage = errMsg
	s.UpdatedAt = time.Now().UTC()

	if err := t.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

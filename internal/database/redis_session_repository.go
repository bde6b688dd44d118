package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

const (
	// Префикс ключей сессий генерации: generation_session:{userID}
	sessionKeyPrefix = "generation_session:"

	// Сессии живут неделю: застрявшая running-сессия старше этого срока
	// восстановлению все равно не подлежит.
	sessionTTL = 7 * 24 * time.Hour
)

// RedisSessionRepository реализует interfaces.SessionRepository поверх Redis.
// У пользователя максимум одна сессия, ключ — generation_session:{userID}.
type RedisSessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSessionRepository создает новый репозиторий сессий генерации.
func NewRedisSessionRepository(client *redis.Client, logger *zap.Logger) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		logger: logger.Named("RedisSessionRepository"),
	}
}

var _ interfaces.SessionRepository = (*RedisSessionRepository)(nil)

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Get возвращает сессию пользователя или models.ErrNotFound.
func (r *RedisSessionRepository) Get(ctx context.Context, userID string) (*models.GenerationSession, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get generation session", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get generation session: %w", err)
	}

	var s models.GenerationSession
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Error("Failed to unmarshal generation session", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal generation session: %w", err)
	}
	return &s, nil
}

// Save сохраняет сессию целиком, last-writer-wins.
func (r *RedisSessionRepository) Save(ctx context.Context, session *models.GenerationSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal generation session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.UserID), data, sessionTTL).Err(); err != nil {
		r.logger.Error("Failed to save generation session", zap.String("userID", session.UserID), zap.Error(err))
		return fmt.Errorf("failed to save generation session: %w", err)
	}
	return nil
}

// Delete удаляет сессию. Отсутствие ключа ошибкой не считается.
func (r *RedisSessionRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		r.logger.Error("Failed to delete generation session", zap.String("userID", userID), zap.Error(err))
		return fmt.Errorf("failed to delete generation session: %w", err)
	}
	return nil
}

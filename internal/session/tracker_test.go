package session_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devotional-server/internal/database"
	"devotional-server/internal/models"
	"devotional-server/internal/session"
)

func newTracker() *session.Tracker {
	return session.NewTracker(database.NewMemorySessionRepository(), zap.NewNop())
}

func TestTracker_StartAndProgress(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	id := uuid.New()

	require.NoError(t, tr.Start(ctx, "u1", id, 7))

	require.NoError(t, tr.UpdateProgress(ctx, "u1", id, "Hope", 1))
	require.NoError(t, tr.UpdateProgress(ctx, "u1", id, "", 2, 3))
	// Повторные номера дней не раздувают набор
	require.NoError(t, tr.UpdateProgress(ctx, "u1", id, "", 2, 2, 1))

	s, err := tr.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRunning, s.Status)
	assert.Equal(t, []int{1, 2, 3}, s.GeneratedDays)
	assert.Equal(t, "Hope", s.LastTitle)
	assert.Equal(t, 7, s.TotalDays)
}

func TestTracker_UpdateProgressWithoutSession(t *testing.T) {
	tr := newTracker()
	err := tr.UpdateProgress(context.Background(), "nobody", uuid.New(), "", 1)
	assert.ErrorIs(t, err, models.ErrNoSessionToRecover)
}

func TestTracker_Recover(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	id := uuid.New()

	// Нет сессии — нечего восстанавливать
	_, err := tr.Recover(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNoSessionToRecover)

	require.NoError(t, tr.Start(ctx, "u1", id, 7))
	require.NoError(t, tr.UpdateProgress(ctx, "u1", id, "Hope", 1, 2))

	s, err := tr.Recover(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, s.DevotionalID)
	assert.Equal(t, id, *s.DevotionalID)
	assert.Equal(t, []int{1, 2}, s.GeneratedDays)

	// Завершенная сессия восстановлению не подлежит
	require.NoError(t, tr.Complete(ctx, "u1", id))
	_, err = tr.Recover(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNoSessionToRecover)
}

func TestTracker_FailKeepsErrorMessage(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	id := uuid.New()

	require.NoError(t, tr.Start(ctx, "u1", id, 7))
	require.NoError(t, tr.Fail(ctx, "u1", id, "fetch failed: network error"))

	s, err := tr.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, s.Status)
	assert.Equal(t, "fetch failed: network error", s.ErrorMessage)

	// failed-сессия не восстановима
	_, err = tr.Recover(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNoSessionToRecover)
}

func TestTracker_IgnoresForeignDevotional(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	current := uuid.New()
	stale := uuid.New()

	require.NoError(t, tr.Start(ctx, "u1", current, 7))

	// Итоги и прогресс чужой серии не трогают текущую сессию
	require.NoError(t, tr.Complete(ctx, "u1", stale))
	require.NoError(t, tr.Fail(ctx, "u1", stale, "boom"))
	err := tr.UpdateProgress(ctx, "u1", stale, "Old Series", 5)
	assert.ErrorIs(t, err, models.ErrNoSessionToRecover)

	s, err := tr.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRunning, s.Status)
	assert.Empty(t, s.GeneratedDays)
	assert.Empty(t, s.ErrorMessage)

	// Своя серия по-прежнему управляет статусом
	require.NoError(t, tr.Complete(ctx, "u1", current))
	s, err = tr.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, s.Status)
}

func TestTracker_Clear(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()

	require.NoError(t, tr.Start(ctx, "u1", uuid.New(), 7))
	require.NoError(t, tr.Clear(ctx, "u1"))

	_, err := tr.Get(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Clear без сессии — не ошибка
	require.NoError(t, tr.Clear(ctx, "u1"))
}

func TestTracker_StatusChangeWithoutSessionIsNoop(t *testing.T) {
	tr := newTracker()
	assert.NoError(t, tr.Complete(context.Background(), "ghost", uuid.New()))
	assert.NoError(t, tr.Fail(context.Background(), "ghost", uuid.New(), "boom"))
}

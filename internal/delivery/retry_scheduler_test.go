package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional-server/internal/delivery"
	"devotional-server/internal/generation"
	"devotional-server/internal/models"
)

func seedPartialDevotional(t *testing.T, e *env, userID string, have, total int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.store.AddDevotional(context.Background(), &models.Devotional{
		ID: id, UserID: userID, Title: "Partial Series",
		TotalDays: total, CurrentDay: 1, Days: days(1, have),
		Translation: "NIV", CreatedAt: time.Now().UTC(),
	}))
	return id
}

func failingContinuation(msg string) continueFunc {
	return func(context.Context, *models.Devotional, *models.UserProfile, int, generation.DayCallback) ([]models.DevotionalDay, error) {
		return nil, errors.New(msg)
	}
}

func completingContinuation(total int) continueFunc {
	return func(_ context.Context, d *models.Devotional, _ *models.UserProfile, _ int, onDay generation.DayCallback) ([]models.DevotionalDay, error) {
		for _, dd := range d.MissingDays(total) {
			onDay(day(dd), "")
		}
		return days(1, total), nil
	}
}

func TestScheduler_LinearBackoffAndRetryCap(t *testing.T) {
	e := newEnv()
	id := seedPartialDevotional(t, e, "u1", 4, 7)

	e.gen.continueFns = []continueFunc{
		failingContinuation("connection refused"),
		failingContinuation("connection refused"),
		failingContinuation("connection refused"),
		failingContinuation("connection refused"),
	}

	e.scheduler.Evaluate("u1", id, 7)
	e.clock.Advance(15 * time.Second)
	e.clock.Advance(30 * time.Second)
	e.clock.Advance(45 * time.Second)

	// Задержки растут линейно: 15s, 30s, 45s; четвертый сбой повторов
	// больше не планирует
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second}, e.clock.recordedDelays())

	st, ok := e.scheduler.Status(id)
	require.True(t, ok)
	assert.True(t, st.ManualRetryRequired)
	assert.Equal(t, 4, st.Attempts)

	_, cc := e.gen.calls()
	assert.Equal(t, 4, cc)

	// Дальше время может идти сколько угодно — автоматика остановлена
	e.clock.Advance(10 * time.Minute)
	_, cc = e.gen.calls()
	assert.Equal(t, 4, cc)
}

func TestScheduler_SuccessResetsAttempts(t *testing.T) {
	e := newEnv()
	id := seedPartialDevotional(t, e, "u1", 4, 7)

	e.gen.continueFns = []continueFunc{
		failingContinuation("fetch failed: network error"),
		completingContinuation(7),
	}

	e.scheduler.Evaluate("u1", id, 7)
	e.clock.Advance(15 * time.Second)

	d, err := e.store.GetDevotional(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, d.Days, 7)

	st, ok := e.scheduler.Status(id)
	require.True(t, ok)
	assert.Zero(t, st.Attempts)
	assert.False(t, st.ManualRetryRequired)

	// Полная серия при следующей переоценке вычищает бухгалтерию
	e.scheduler.Evaluate("u1", id, 7)
	_, ok = e.scheduler.Status(id)
	assert.False(t, ok)
}

func TestScheduler_CompleteSeriesNotRestarted(t *testing.T) {
	e := newEnv()
	id := seedPartialDevotional(t, e, "u1", 7, 7)

	e.scheduler.Evaluate("u1", id, 7)

	_, cc := e.gen.calls()
	assert.Zero(t, cc)
	_, ok := e.scheduler.Status(id)
	assert.False(t, ok)
}

func TestScheduler_OfflineDefersUntilReconnect(t *testing.T) {
	e := newEnv()
	id := seedPartialDevotional(t, e, "u1", 4, 7)
	e.online.set(false)

	e.gen.continueFns = []continueFunc{completingContinuation(7)}

	e.scheduler.Evaluate("u1", id, 7)

	// В офлайне запусков и таймеров нет
	_, cc := e.gen.calls()
	assert.Zero(t, cc)
	assert.Empty(t, e.clock.recordedDelays())
	st, ok := e.scheduler.Status(id)
	require.True(t, ok)
	assert.True(t, st.WaitingForConnection)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.scheduler.Run(ctx)

	// Сеть вернулась — переоценка немедленно, без ожидания задержки
	e.online.set(true)
	require.Eventually(t, func() bool {
		d, err := e.store.GetDevotional(context.Background(), id)
		return err == nil && len(d.Days) == 7
	}, 2*time.Second, 5*time.Millisecond)

	_, cc = e.gen.calls()
	assert.Equal(t, 1, cc)
}

func TestScheduler_NonTransientFailureNeedsManualRetry(t *testing.T) {
	e := newEnv()
	id := seedPartialDevotional(t, e, "u1", 4, 7)

	e.gen.continueFns = []continueFunc{failingContinuation("strange condition")}

	e.scheduler.Evaluate("u1", id, 7)

	st, ok := e.scheduler.Status(id)
	require.True(t, ok)
	assert.True(t, st.ManualRetryRequired)
	// Неизвестные ошибки автоматом не ретраим
	assert.Empty(t, e.clock.recordedDelays())

	// Число дней не изменилось — чекпоинт гасит повторный запуск
	e.scheduler.Evaluate("u1", id, 7)
	_, cc := e.gen.calls()
	assert.Equal(t, 1, cc)

	// Ручной повтор обнуляет бухгалтерию и проходит
	e.gen.mu.Lock()
	e.gen.continueFns = []continueFunc{completingContinuation(7)}
	e.gen.mu.Unlock()
	e.scheduler.ResetForManualRetry(id)
	e.scheduler.Evaluate("u1", id, 7)

	d, err := e.store.GetDevotional(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, d.Days, 7)
}

// Сквозной сценарий восстановления: полная генерация падает на сети после
// четырех дней, немедленное продолжение тоже падает, повтор через 15 секунд
// дописывает серию.
func TestScheduler_RecoveryEndToEnd(t *testing.T) {
	e := newEnv()
	e.wireScheduler()
	ctx := context.Background()

	e.gen.generateFn = func(_ context.Context, _ *models.UserProfile, onDay generation.DayCallback) (*generation.GenerationResult, error) {
		for n := 1; n <= 4; n++ {
			onDay(day(n), "Through the Valley")
		}
		return nil, errors.New("fetch failed: network error")
	}
	e.gen.continueFns = []continueFunc{
		failingContinuation("fetch failed: network error"),
		func(_ context.Context, d *models.Devotional, _ *models.UserProfile, _ int, onDay generation.DayCallback) ([]models.DevotionalDay, error) {
			assert.Len(t, d.Days, 4)
			for _, n := range d.MissingDays(7) {
				onDay(day(n), "")
			}
			return days(1, 7), nil
		},
	}

	id, err := e.controller.Begin(ctx, profileOfLength("u1", 7))
	require.NoError(t, err)

	// Сбой полной генерации ведет к немедленной попытке продолжения; ее
	// сбой планирует повтор через 15 секунд
	require.Eventually(t, func() bool {
		return len(e.clock.recordedDelays()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{15 * time.Second}, e.clock.recordedDelays())

	d, err := e.store.GetDevotional(ctx, id)
	require.NoError(t, err)
	assert.Len(t, d.Days, 4)
	assert.Equal(t, "Through the Valley", d.Title)

	s, err := e.tracker.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, s.Status)

	// Таймер срабатывает — серия дописывается до конца
	e.clock.Advance(15 * time.Second)

	d, err = e.store.GetDevotional(ctx, id)
	require.NoError(t, err)
	require.Len(t, d.Days, 7)
	for i, dd := range d.Days {
		assert.Equal(t, i+1, dd.DayNumber)
	}

	s, err = e.tracker.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, s.Status)

	assert.Len(t, e.publisher.byKind(models.PushEventFirstDayReady), 1)
	assert.Len(t, e.publisher.byKind(models.PushEventSeriesReady), 1)
	assert.Len(t, e.notifier.byType(delivery.EventGenerationCompleted), 1)
}

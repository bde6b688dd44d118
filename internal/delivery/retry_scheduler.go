package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devotional-server/internal/config"
	"devotional-server/internal/generation"
	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// ContinuationRunner — часть контроллера, нужная планировщику.
type ContinuationRunner interface {
	ContinueGeneration(ctx context.Context, userID string, devotionalID uuid.UUID, expectedTotal int) error
}

// OnlineSource — сигнал доступности сети.
type OnlineSource interface {
	Online() bool
	Subscribe() <-chan bool
}

// retryState — бухгалтерия повторов одной серии. Живет только в памяти
// и восстанавливается из стора при следующем Evaluate.
type retryState struct {
	userID          string
	requestedLength int

	attempts   int
	checkpoint int // число дней на момент последнего запуска; -1 — нет
	timer      Timer
	nextRetry  time.Time

	inFlight             bool
	waitingForConnection bool
	manualRetryRequired  bool
}

// RetryStatus — снапшот состояния повторов для внешнего наблюдателя.
type RetryStatus struct {
	Attempts             int       `json:"attempts"`
	NextRetryAt          time.Time `json:"nextRetryAt,omitzero"`
	WaitingForConnection bool      `json:"waitingForConnection"`
	ManualRetryRequired  bool      `json:"manualRetryRequired"`
	InFlight             bool      `json:"inFlight"`
}

// Scheduler автоматически догенерирует недосгенерированные серии:
// ограниченное число повторов с линейно растущей задержкой, пауза в
// офлайне и немедленная переоценка при восстановлении сети.
type Scheduler struct {
	controller ContinuationRunner
	store      interfaces.DevotionalStore
	online     OnlineSource
	clock      Clock
	logger     *zap.Logger

	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int

	mu     sync.Mutex
	states map[uuid.UUID]*retryState
}

// NewScheduler создает планировщик с параметрами повторов из конфига.
func NewScheduler(controller ContinuationRunner, store interfaces.DevotionalStore, online OnlineSource, clock Clock, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		controller: controller,
		store:      store,
		online:     online,
		clock:      clock,
		logger:     logger.Named("RetryScheduler"),
		baseDelay:  cfg.ContinuationBaseDelay,
		maxDelay:   cfg.ContinuationMaxDelay,
		maxRetries: cfg.ContinuationMaxRetries,
		states:     make(map[uuid.UUID]*retryState),
	}
}

// Evaluate переоценивает серию и при необходимости запускает продолжение.
// Вызов синхронный: продолжение выполняется в горутине вызывающего.
func (s *Scheduler) Evaluate(userID string, devotionalID uuid.UUID, requestedLength int) {
	ctx := context.Background()

	d, err := s.store.GetDevotional(ctx, devotionalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.clearState(devotionalID)
			return
		}
		s.logger.Warn("Failed to load devotional for retry evaluation",
			zap.String("devotionalID", devotionalID.String()), zap.Error(err))
		return
	}

	expected := d.TotalDays
	if requestedLength > expected {
		expected = requestedLength
	}

	// Шаг 1: серия полная — чистим бухгалтерию и выходим.
	if len(d.Days) >= expected {
		s.clearState(devotionalID)
		return
	}

	s.mu.Lock()
	st := s.ensureStateLocked(devotionalID, userID, requestedLength)

	// Шаг 2: офлайн — ждем сигнала восстановления сети, таймеры снимаем.
	if !s.online.Online() {
		st.waitingForConnection = true
		s.stopTimerLocked(st)
		s.mu.Unlock()
		s.logger.Info("Offline, suppressing continuation retries",
			zap.String("devotionalID", devotionalID.String()))
		return
	}
	st.waitingForConnection = false

	// Шаг 3: для этого состояния запуск уже был — не дублируем.
	if st.checkpoint == len(d.Days) {
		s.mu.Unlock()
		return
	}

	if st.inFlight {
		s.mu.Unlock()
		return
	}

	// Шаг 4: фиксируем чекпоинт и запускаем продолжение.
	st.checkpoint = len(d.Days)
	st.inFlight = true
	s.mu.Unlock()

	runErr := s.controller.ContinueGeneration(ctx, userID, devotionalID, expected)

	s.mu.Lock()
	defer s.mu.Unlock()
	st.inFlight = false

	switch {
	case runErr == nil:
		st.attempts = 0
		st.checkpoint = -1
		st.manualRetryRequired = false
		s.stopTimerLocked(st)

	case errors.Is(runErr, models.ErrContinuationSkipped):
		// Полная генерация этой серии уже идет. Чекпоинт оставляем:
		// когда она допишет дни, состояние изменится и Evaluate пройдет.

	default:
		kind := generation.Classify(runErr)
		if !kind.AutoRetryable() {
			st.manualRetryRequired = true
			s.logger.Warn("Continuation failed, not auto-retryable",
				zap.String("devotionalID", devotionalID.String()),
				zap.String("kind", string(kind)),
				zap.Error(runErr))
			return
		}

		st.attempts++
		if st.attempts > s.maxRetries {
			st.manualRetryRequired = true
			retriesExhaustedTotal.Inc()
			s.logger.Warn("Retry cap reached, waiting for manual retry",
				zap.String("devotionalID", devotionalID.String()),
				zap.Int("attempts", st.attempts))
			return
		}

		delay := s.baseDelay * time.Duration(st.attempts)
		if delay > s.maxDelay {
			delay = s.maxDelay
		}

		// Сбрасываем чекпоинт, иначе отложенная переоценка споткнется
		// о шаг 3 при неизменившемся числе дней.
		st.checkpoint = -1
		st.nextRetry = s.clock.Now().Add(delay)
		s.stopTimerLocked(st)
		st.timer = s.clock.AfterFunc(delay, func() {
			s.Evaluate(userID, devotionalID, requestedLength)
		})
		retriesScheduledTotal.Inc()

		s.logger.Info("Continuation retry scheduled",
			zap.String("devotionalID", devotionalID.String()),
			zap.Int("attempt", st.attempts),
			zap.Duration("delay", delay))
	}
}

// ResetForManualRetry обнуляет счетчик попыток перед ручным повтором.
func (s *Scheduler) ResetForManualRetry(devotionalID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[devotionalID]; ok {
		st.attempts = 0
		st.checkpoint = -1
		st.manualRetryRequired = false
		s.stopTimerLocked(st)
	}
}

// Status возвращает снапшот бухгалтерии повторов серии.
func (s *Scheduler) Status(devotionalID uuid.UUID) (RetryStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[devotionalID]
	if !ok {
		return RetryStatus{}, false
	}
	return RetryStatus{
		Attempts:             st.attempts,
		NextRetryAt:          st.nextRetry,
		WaitingForConnection: st.waitingForConnection,
		ManualRetryRequired:  st.manualRetryRequired,
		InFlight:             st.inFlight,
	}, true
}

// Run слушает сигнал сети: при восстановлении связи все ожидающие серии
// переоцениваются немедленно, не дожидаясь остатка задержки.
func (s *Scheduler) Run(ctx context.Context) {
	events := s.online.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-events:
			if !ok {
				return
			}
			if !online {
				continue
			}
			s.onConnectivityRegained()
		}
	}
}

func (s *Scheduler) onConnectivityRegained() {
	type pending struct {
		id              uuid.UUID
		userID          string
		requestedLength int
	}

	s.mu.Lock()
	var toEval []pending
	for id, st := range s.states {
		if st.waitingForConnection && !st.manualRetryRequired {
			st.waitingForConnection = false
			s.stopTimerLocked(st)
			toEval = append(toEval, pending{id: id, userID: st.userID, requestedLength: st.requestedLength})
		}
	}
	s.mu.Unlock()

	for _, p := range toEval {
		s.logger.Info("Connectivity regained, re-evaluating continuation",
			zap.String("devotionalID", p.id.String()))
		s.Evaluate(p.userID, p.id, p.requestedLength)
	}
}

func (s *Scheduler) ensureStateLocked(id uuid.UUID, userID string, requestedLength int) *retryState {
	st, ok := s.states[id]
	if !ok {
		st = &retryState{userID: userID, requestedLength: requestedLength, checkpoint: -1}
		s.states[id] = st
	}
	st.userID = userID
	if requestedLength > st.requestedLength {
		st.requestedLength = requestedLength
	}
	return st
}

func (s *Scheduler) clearState(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		s.stopTimerLocked(st)
		delete(s.states, id)
	}
}

func (s *Scheduler) stopTimerLocked(st *retryState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.nextRetry = time.Time{}
}

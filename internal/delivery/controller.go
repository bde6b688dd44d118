package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devotional-server/internal/generation"
	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
	"devotional-server/internal/session"
)

// State — состояние попытки генерации.
type State string

const (
	StateSeeding    State = "seeding"
	StateGenerating State = "generating"
	StateDay1Ready  State = "day1_ready"
	StateStreaming  State = "streaming"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// RetryEvaluator запускает переоценку планировщика повторов после сбоя.
// Разрывает цикл конструирования Controller <-> Scheduler.
type RetryEvaluator interface {
	Evaluate(userID string, devotionalID uuid.UUID, requestedLength int)
}

// Controller оркестрирует прогрессивную генерацию: сеется из частичной
// серии, получает дни по callback'у, пишет каждый день в стор сразу по
// готовности и открывает чтение в момент появления дня 1.
type Controller struct {
	generator generation.DevotionalGenerator
	registry  *generation.ActiveRegistry
	store     interfaces.DevotionalStore
	tracker   *session.Tracker
	notifier  ProgressNotifier
	publisher interfaces.PushEventPublisher
	logger    *zap.Logger

	mu   sync.Mutex
	runs map[string]*run // ключ — userID

	retryEvaluator RetryEvaluator
}

// run — изменяемое состояние одной попытки генерации.
type run struct {
	mu sync.Mutex

	state        State
	userID       string
	devotionalID uuid.UUID
	profile      *models.UserProfile

	title     string
	totalDays int
	days      map[int]models.DevotionalDay
	persisted bool // запись Devotional уже создана в сторе

	failureKind generation.FailureKind
	userMessage string
}

// NewController создает контроллер доставки.
func NewController(
	generator generation.DevotionalGenerator,
	registry *generation.ActiveRegistry,
	store interfaces.DevotionalStore,
	tracker *session.Tracker,
	notifier ProgressNotifier,
	publisher interfaces.PushEventPublisher,
	logger *zap.Logger,
) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		generator: generator,
		registry:  registry,
		store:     store,
		tracker:   tracker,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.Named("DeliveryController"),
		runs:      make(map[string]*run),
	}
}

// SetRetryEvaluator подключает планировщик повторов. Вызывается один раз
// при сборке приложения.
func (c *Controller) SetRetryEvaluator(ev RetryEvaluator) {
	c.retryEvaluator = ev
}

// Begin запускает генерацию для профиля. Фаза seeding выполняется
// синхронно: определяется id серии (переиспользуется из восстановимой
// сессии либо создается новый) и занимается слот генерации. Сама
// генерация идет в фоне; прогресс доступен через стор и ProgressNotifier.
func (c *Controller) Begin(ctx context.Context, profile *models.UserProfile) (uuid.UUID, error) {
	r, err := c.seed(ctx, profile)
	if err != nil {
		return uuid.Nil, err
	}

	if !c.registry.TryAcquire(r.devotionalID) {
		return uuid.Nil, models.ErrGenerationInProgress
	}

	if err := c.tracker.Start(ctx, profile.UserID, r.devotionalID, r.totalDays); err != nil {
		c.registry.Release(r.devotionalID)
		return uuid.Nil, err
	}
	if len(r.days) > 0 {
		// Восстановленная сессия: фиксируем уже существующие дни.
		nums := sortedDayNumbers(r.days)
		if err := c.tracker.UpdateProgress(ctx, profile.UserID, r.devotionalID, r.title, nums...); err != nil {
			c.logger.Warn("Failed to seed session progress", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.runs[profile.UserID] = r
	c.mu.Unlock()

	// Генерация переживает отключение клиента: контекст запроса не наследуем.
	go c.runGeneration(context.WithoutCancel(ctx), r)

	return r.devotionalID, nil
}

// seed определяет id серии и засевает аккумулятор из стора.
func (c *Controller) seed(ctx context.Context, profile *models.UserProfile) (*run, error) {
	r := &run{
		state:     StateSeeding,
		userID:    profile.UserID,
		profile:   profile,
		totalDays: profile.EffectiveLength(),
		days:      make(map[int]models.DevotionalDay),
	}

	if s, err := c.tracker.Recover(ctx, profile.UserID); err == nil {
		if existing, err := c.store.GetDevotional(ctx, *s.DevotionalID); err == nil && existing.UserID == profile.UserID {
			r.devotionalID = existing.ID
			r.title = existing.Title
			r.persisted = true
			if existing.TotalDays > r.totalDays {
				r.totalDays = existing.TotalDays
			}
			for _, day := range existing.Days {
				r.days[day.DayNumber] = day
			}
			c.logger.Info("Resuming interrupted generation",
				zap.String("userID", profile.UserID),
				zap.String("devotionalID", existing.ID.String()),
				zap.Int("existingDays", len(existing.Days)),
			)
			return r, nil
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to load devotional for recovered session: %w", err)
		}
		// Сессия ссылается на несуществующую запись — начинаем заново.
	} else if !errors.Is(err, models.ErrNoSessionToRecover) {
		return nil, err
	}

	r.devotionalID = uuid.New()
	return r, nil
}

// runGeneration ведет попытку от generating до complete/failed.
func (c *Controller) runGeneration(ctx context.Context, r *run) {
	r.mu.Lock()
	resumed := r.persisted
	r.state = StateGenerating
	r.mu.Unlock()

	c.notifier.NotifyUser(r.userID, ProgressEvent{
		Type:         EventGenerationStarted,
		DevotionalID: r.devotionalID,
		TotalDays:    r.totalDays,
	})

	var finalTitle string
	var finalDays []models.DevotionalDay
	var err error
	mode := "full"
	onDay := func(day models.DevotionalDay, seriesTitle string) {
		c.handleDay(ctx, r, day, seriesTitle)
	}

	if resumed {
		mode = "continuation"
		existing := c.snapshotDevotional(r)
		finalDays, err = c.generator.ContinueGeneratingDays(ctx, existing, r.profile, r.totalDays, onDay)
		finalTitle = r.currentTitle()
	} else {
		var res *generation.GenerationResult
		res, err = c.generator.GenerateDevotional(ctx, r.profile, onDay)
		if res != nil {
			finalTitle = res.Title
			finalDays = res.Days
		}
	}

	if err != nil {
		generationRunsTotal.WithLabelValues(mode, "failed").Inc()
		c.fail(ctx, r, err)

		// Слот генерации освобождаем до переоценки, иначе планировщик
		// увидит серию занятой и пропустит повтор.
		c.registry.Release(r.devotionalID)
		if c.retryEvaluator != nil && r.persistedSnapshot() {
			c.retryEvaluator.Evaluate(r.userID, r.devotionalID, r.profile.EffectiveLength())
		}
		return
	}

	generationRunsTotal.WithLabelValues(mode, "completed").Inc()
	c.complete(ctx, r, finalTitle, finalDays)
	c.registry.Release(r.devotionalID)
}

// handleDay применяет один день к аккумулятору и стору. Идемпотентен:
// повтор того же номера дня не меняет содержимое (первая версия
// выигрывает), но запись в стор все равно выполняется.
func (c *Controller) handleDay(ctx context.Context, r *run, day models.DevotionalDay, seriesTitle string) {
	r.mu.Lock()

	if seriesTitle != "" && r.title == "" {
		r.title = seriesTitle
	}
	if _, exists := r.days[day.DayNumber]; !exists {
		r.days[day.DayNumber] = day
	}

	firstPersist := !r.persisted && r.title != "" && len(r.days) > 0
	if firstPersist {
		r.persisted = true
		r.state = StateDay1Ready
	} else if r.persisted && r.state != StateFailed {
		r.state = StateStreaming
	}

	title := r.title
	days := sortedDays(r.days)
	total := r.totalDays
	r.mu.Unlock()

	if firstPersist {
		d := &models.Devotional{
			ID:          r.devotionalID,
			UserID:      r.userID,
			Title:       title,
			TotalDays:   total,
			CurrentDay:  1,
			Days:        days,
			SeekingText: r.profile.SeekingText,
			Translation: r.profile.Translation,
			CreatedAt:   time.Now().UTC(),
		}
		if err := c.store.AddDevotional(ctx, d); err != nil {
			c.logger.Error("Failed to persist devotional on first day",
				zap.String("devotionalID", r.devotionalID.String()), zap.Error(err))
		} else {
			c.publishPush(ctx, models.PushEventFirstDayReady, r, title)
		}
	} else {
		if err := c.store.UpdateDevotionalDays(ctx, r.devotionalID, days, strPtr(title), total); err != nil {
			c.logger.Error("Failed to update devotional days",
				zap.String("devotionalID", r.devotionalID.String()), zap.Error(err))
		}
	}

	if err := c.tracker.UpdateProgress(ctx, r.userID, r.devotionalID, title, day.DayNumber); err != nil {
		c.logger.Warn("Failed to update session progress", zap.Error(err))
	}

	c.notifier.NotifyUser(r.userID, ProgressEvent{
		Type:         EventDayReady,
		DevotionalID: r.devotionalID,
		Title:        title,
		DayNumber:    day.DayNumber,
		DaysReady:    len(days),
		TotalDays:    total,
	})
}

// complete выполняет финальную сверку стора с аккумулятором и закрывает
// сессию. finalDays — полный список из итогового результата генератора:
// если ни один callback не сработал, запись собирается из него напрямую.
func (c *Controller) complete(ctx context.Context, r *run, finalTitle string, finalDays []models.DevotionalDay) {
	r.mu.Lock()
	if finalTitle != "" {
		r.title = finalTitle
	}
	for _, day := range finalDays {
		if _, exists := r.days[day.DayNumber]; !exists {
			r.days[day.DayNumber] = day
		}
	}
	title := r.title
	days := sortedDays(r.days)
	total := r.totalDays
	persisted := r.persisted
	r.state = StateComplete
	r.mu.Unlock()

	if !persisted {
		// Защитный путь: ни один callback не сработал, собираем запись
		// напрямую из финального результата.
		if len(days) == 0 {
			c.fail(ctx, r, fmt.Errorf("generation resolved with no days"))
			return
		}
		d := &models.Devotional{
			ID:          r.devotionalID,
			UserID:      r.userID,
			Title:       title,
			TotalDays:   total,
			CurrentDay:  1,
			Days:        days,
			SeekingText: r.profile.SeekingText,
			Translation: r.profile.Translation,
			CreatedAt:   time.Now().UTC(),
		}
		if err := c.store.AddDevotional(ctx, d); err != nil {
			c.logger.Error("Failed to persist devotional on completion", zap.Error(err))
		} else {
			c.publishPush(ctx, models.PushEventFirstDayReady, r, title)
		}
	} else {
		if err := c.store.UpdateDevotionalDays(ctx, r.devotionalID, days, strPtr(title), total); err != nil {
			c.logger.Error("Failed to reconcile devotional days on completion", zap.Error(err))
		}
	}

	refs := generation.ExtractScripturesFromDevotional(c.snapshotDevotional(r))
	if len(refs) > 0 {
		if err := c.store.AddUsedScriptures(ctx, r.userID, refs); err != nil {
			c.logger.Warn("Failed to record used scriptures", zap.Error(err))
		}
	}

	if err := c.tracker.Complete(ctx, r.userID, r.devotionalID); err != nil {
		c.logger.Warn("Failed to complete session", zap.Error(err))
	}

	c.publishPush(ctx, models.PushEventSeriesReady, r, title)
	c.notifier.NotifyUser(r.userID, ProgressEvent{
		Type:         EventGenerationCompleted,
		DevotionalID: r.devotionalID,
		Title:        title,
		DaysReady:    len(days),
		TotalDays:    total,
	})

	c.logger.Info("Devotional generation completed",
		zap.String("userID", r.userID),
		zap.String("devotionalID", r.devotionalID.String()),
		zap.Int("days", len(days)),
	)
}

// fail фиксирует сбой: классифицирует ошибку, помечает сессию failed и
// оставляет уже записанные дни нетронутыми. Прогресс при ошибке не
// откатывается никогда.
func (c *Controller) fail(ctx context.Context, r *run, genErr error) {
	kind := generation.Classify(genErr)
	userMsg := kind.UserMessage()

	r.mu.Lock()
	r.state = StateFailed
	r.failureKind = kind
	r.userMessage = userMsg
	daysReady := len(r.days)
	total := r.totalDays
	r.mu.Unlock()

	c.logger.Error("Devotional generation failed",
		zap.String("userID", r.userID),
		zap.String("devotionalID", r.devotionalID.String()),
		zap.String("kind", string(kind)),
		zap.Int("daysReady", daysReady),
		zap.Error(genErr),
	)

	if err := c.tracker.Fail(ctx, r.userID, r.devotionalID, genErr.Error()); err != nil {
		c.logger.Warn("Failed to mark session failed", zap.Error(err))
	}

	c.notifier.NotifyUser(r.userID, ProgressEvent{
		Type:         EventGenerationFailed,
		DevotionalID: r.devotionalID,
		DaysReady:    daysReady,
		TotalDays:    total,
		Message:      userMsg,
	})
}

// ContinueGeneration догенерирует недостающие дни существующей серии.
// Возвращает models.ErrContinuationSkipped, если для этой серии уже идет
// полная генерация.
func (c *Controller) ContinueGeneration(ctx context.Context, userID string, devotionalID uuid.UUID, expectedTotal int) error {
	if !c.registry.TryAcquire(devotionalID) {
		return models.ErrContinuationSkipped
	}
	defer c.registry.Release(devotionalID)

	d, err := c.store.GetDevotional(ctx, devotionalID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return models.ErrForbidden
	}
	if expectedTotal < d.TotalDays {
		expectedTotal = d.TotalDays
	}
	if len(d.MissingDays(expectedTotal)) == 0 {
		return nil
	}

	r := &run{
		state:        StateStreaming,
		userID:       userID,
		devotionalID: devotionalID,
		profile:      &models.UserProfile{UserID: userID, SeekingText: d.SeekingText, Translation: d.Translation},
		title:        d.Title,
		totalDays:    expectedTotal,
		days:         make(map[int]models.DevotionalDay, len(d.Days)),
		persisted:    true,
	}
	for _, day := range d.Days {
		r.days[day.DayNumber] = day
	}

	onDay := func(day models.DevotionalDay, seriesTitle string) {
		c.handleDay(ctx, r, day, seriesTitle)
	}

	finalDays, err := c.generator.ContinueGeneratingDays(ctx, d, nil, expectedTotal, onDay)
	if err != nil {
		generationRunsTotal.WithLabelValues("continuation", "failed").Inc()
		c.fail(ctx, r, err)
		return err
	}

	generationRunsTotal.WithLabelValues("continuation", "completed").Inc()
	c.complete(ctx, r, r.currentTitle(), finalDays)
	return nil
}

// StartOver сбрасывает сессию генерации: пользователь возвращается к
// сбору профиля вместо продолжения прерванной серии.
func (c *Controller) StartOver(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.runs, userID)
	c.mu.Unlock()
	return c.tracker.Clear(ctx, userID)
}

// RunState возвращает снапшот состояния текущей попытки пользователя.
func (c *Controller) RunState(userID string) (State, bool) {
	c.mu.Lock()
	r, ok := c.runs[userID]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, true
}

// publishPush отправляет push-событие. Отказ доставки не влияет на генерацию.
func (c *Controller) publishPush(ctx context.Context, kind models.PushEventKind, r *run, title string) {
	if c.publisher == nil {
		return
	}
	event := models.PushEvent{
		EventID:      uuid.New(),
		Kind:         kind,
		UserID:       r.userID,
		DevotionalID: r.devotionalID,
		Title:        title,
		TotalDays:    r.totalDays,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("Failed to publish push event",
			zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (c *Controller) snapshotDevotional(r *run) *models.Devotional {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &models.Devotional{
		ID:          r.devotionalID,
		UserID:      r.userID,
		Title:       r.title,
		TotalDays:   r.totalDays,
		CurrentDay:  1,
		Days:        sortedDays(r.days),
		SeekingText: r.profile.SeekingText,
		Translation: r.profile.Translation,
	}
}

func (r *run) persistedSnapshot() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persisted
}

func (r *run) currentTitle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title
}

func sortedDays(m map[int]models.DevotionalDay) []models.DevotionalDay {
	days := make([]models.DevotionalDay, 0, len(m))
	for _, d := range m {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].DayNumber < days[j].DayNumber })
	return days
}

func sortedDayNumbers(m map[int]models.DevotionalDay) []int {
	nums := make([]int, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package generation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"devotional-server/internal/config"
	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// DayCallback вызывается для каждого успешно сгенерированного дня,
// в порядке возрастания номера дня внутри партии. seriesTitle может быть
// пустым для продолжений существующей серии.
type DayCallback func(day models.DevotionalDay, seriesTitle string)

// GenerationResult — итог полной генерации серии.
type GenerationResult struct {
	Title string
	Days  []models.DevotionalDay
}

// DevotionalGenerator генерирует серии девоционалов прогрессивно,
// отдавая дни по мере готовности.
type DevotionalGenerator interface {
	// GenerateDevotional генерирует новую серию для профиля. Дни
	// доставляются через onDay по мере готовности, итоговый результат
	// содержит полный список. При ошибке после частичной генерации уже
	// доставленные через callback дни остаются у вызывающего.
	GenerateDevotional(ctx context.Context, profile *models.UserProfile, onDay DayCallback) (*GenerationResult, error)

	// ContinueGeneratingDays догенерирует недостающие дни существующей
	// серии до expectedTotal и возвращает полный список дней (старые
	// плюс новые). Если недостающих дней нет, AI не вызывается.
	ContinueGeneratingDays(ctx context.Context, d *models.Devotional, profile *models.UserProfile, expectedTotal int, onDay DayCallback) ([]models.DevotionalDay, error)
}

// Client — реализация DevotionalGenerator поверх AIClient.
type Client struct {
	ai        AIClient
	store     interfaces.DevotionalStore
	logger    *zap.Logger
	batchSize int

	maxAttempts    int
	baseRetryDelay time.Duration
	recentLimit    int
}

// NewClient создает генератор с настройками ретраев и батчинга из конфига.
func NewClient(ai AIClient, store interfaces.DevotionalStore, cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		ai:             ai,
		store:          store,
		logger:         logger.Named("DevotionalGenerator"),
		batchSize:      cfg.GenerationBatchSize,
		maxAttempts:    cfg.AIMaxAttempts,
		baseRetryDelay: cfg.AIBaseRetryDelay,
		recentLimit:    cfg.RecentScriptureLimit,
	}
}

// GenerateDevotional генерирует серию партиями. Первая партия всегда
// содержит день 1 — она же дает заголовок серии.
func (c *Client) GenerateDevotional(ctx context.Context, profile *models.UserProfile, onDay DayCallback) (*GenerationResult, error) {
	totalDays := profile.EffectiveLength()
	systemPrompt := buildSystemPrompt(profile)

	recent, err := c.store.GetRecentScriptures(ctx, profile.UserID, c.recentLimit)
	if err != nil {
		// Список исключений — best effort, генерацию из-за него не валим.
		c.logger.Warn("Failed to load recent scriptures", zap.String("userID", profile.UserID), zap.Error(err))
		recent = nil
	}

	result := &GenerationResult{}

	for fromDay := 1; fromDay <= totalDays; fromDay += c.batchSize {
		toDay := fromDay + c.batchSize - 1
		if toDay > totalDays {
			toDay = totalDays
		}

		userInput := buildInitialUserInput(profile, fromDay, toDay, totalDays, recent)

		title, days, err := c.generateBatch(ctx, profile.UserID, systemPrompt, userInput, fromDay, toDay)
		if err != nil {
			return nil, err
		}

		if result.Title == "" && title != "" {
			result.Title = title
		}

		c.deliverDays(days, result.Title, onDay, "initial")
		result.Days = append(result.Days, days...)
		recent = appendRefs(recent, days, profile.Translation)
	}

	return result, nil
}

// ContinueGeneratingDays генерирует недостающие дни существующей серии.
func (c *Client) ContinueGeneratingDays(ctx context.Context, d *models.Devotional, profile *models.UserProfile, expectedTotal int, onDay DayCallback) ([]models.DevotionalDay, error) {
	existing := append([]models.DevotionalDay(nil), d.Days...)

	missing := d.MissingDays(expectedTotal)
	if len(missing) == 0 {
		return existing, nil
	}

	c.logger.Info("Continuing devotional generation",
		zap.String("devotionalID", d.ID.String()),
		zap.Ints("missingDays", missing),
	)

	var systemPrompt string
	if profile != nil {
		systemPrompt = buildSystemPrompt(profile)
	} else {
		systemPrompt = buildSystemPrompt(&models.UserProfile{Translation: d.Translation})
	}

	recent, err := c.store.GetRecentScriptures(ctx, d.UserID, c.recentLimit)
	if err != nil {
		c.logger.Warn("Failed to load recent scriptures", zap.String("userID", d.UserID), zap.Error(err))
		recent = nil
	}

	for start := 0; start < len(missing); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		userInput := buildContinuationUserInput(d, profile, batch, recent)

		_, days, err := c.generateBatch(ctx, d.UserID, systemPrompt, userInput, batch[0], batch[len(batch)-1])
		if err != nil {
			return nil, err
		}

		// Ограничиваем номерами из запрошенной партии: модель иногда
		// возвращает лишние дни.
		wanted := make(map[int]bool, len(batch))
		for _, n := range batch {
			wanted[n] = true
		}
		filtered := days[:0]
		for _, day := range days {
			if wanted[day.DayNumber] {
				filtered = append(filtered, day)
			}
		}

		c.deliverDays(filtered, "", onDay, "continuation")
		existing = append(existing, filtered...)
		recent = appendRefs(recent, filtered, d.Translation)
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i].DayNumber < existing[j].DayNumber })
	return existing, nil
}

// generateBatch делает один AI-вызов с ретраями и парсит результат.
func (c *Client) generateBatch(ctx context.Context, userID, systemPrompt, userInput string, fromDay, toDay int) (string, []models.DevotionalDay, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay(attempt)
			c.logger.Info("Retrying AI generation",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Int("fromDay", fromDay),
				zap.Int("toDay", toDay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		}

		raw, _, err := c.ai.GenerateText(ctx, userID, systemPrompt, userInput, defaultParams())
		if err != nil {
			lastErr = err
			// Отказ фильтра контента ретраить бессмысленно
			if Classify(err) == FailureContentPolicy {
				return "", nil, err
			}
			continue
		}

		title, days, err := parseSeriesResponse(raw)
		if err != nil {
			lastErr = fmt.Errorf("batch %d-%d: %w", fromDay, toDay, err)
			continue
		}

		sort.Slice(days, func(i, j int) bool { return days[i].DayNumber < days[j].DayNumber })
		return title, days, nil
	}

	return "", nil, fmt.Errorf("generation failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// deliverDays вызывает callback для каждого дня партии.
func (c *Client) deliverDays(days []models.DevotionalDay, seriesTitle string, onDay DayCallback, mode string) {
	for _, day := range days {
		if onDay != nil {
			onDay(day, seriesTitle)
		}
		daysGeneratedTotal.WithLabelValues(mode).Inc()
	}
}

// retryDelay: экспоненциальный backoff с джиттером до 20%.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.baseRetryDelay * time.Duration(1<<(attempt-2))
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

func defaultParams() GenerationParams {
	temp := 0.8
	maxTokens := 4096
	return GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
}

func appendRefs(recent []models.ScriptureRef, days []models.DevotionalDay, translation string) []models.ScriptureRef {
	for _, day := range days {
		if day.ScriptureReference != "" {
			recent = append(recent, models.ScriptureRef{Reference: day.ScriptureReference, Translation: translation})
		}
	}
	return recent
}

// ExtractScripturesFromDevotional собирает ссылки на места Писания из всех
// дней серии, без дубликатов, в порядке дней.
func ExtractScripturesFromDevotional(d *models.Devotional) []models.ScriptureRef {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool, len(d.Days))
	refs := make([]models.ScriptureRef, 0, len(d.Days))
	for _, day := range d.Days {
		if day.ScriptureReference == "" || seen[day.ScriptureReference] {
			continue
		}
		seen[day.ScriptureReference] = true
		refs = append(refs, models.ScriptureRef{
			Reference:   day.ScriptureReference,
			Translation: d.Translation,
		})
	}
	return refs
}

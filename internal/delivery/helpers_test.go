package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"devotional-server/internal/config"
	"devotional-server/internal/database"
	"devotional-server/internal/delivery"
	"devotional-server/internal/generation"
	"devotional-server/internal/models"
	"devotional-server/internal/session"
)

// --- scripted generator ---

type generateFunc func(ctx context.Context, profile *models.UserProfile, onDay generation.DayCallback) (*generation.GenerationResult, error)
type continueFunc func(ctx context.Context, d *models.Devotional, profile *models.UserProfile, expectedTotal int, onDay generation.DayCallback) ([]models.DevotionalDay, error)

// scriptedGenerator проигрывает заранее заданные сценарии генерации.
// Каждый вызов ContinueGeneratingDays снимает следующий сценарий из очереди.
type scriptedGenerator struct {
	mu            sync.Mutex
	generateFn    generateFunc
	continueFns   []continueFunc
	generateCalls int
	continueCalls int
}

func (g *scriptedGenerator) GenerateDevotional(ctx context.Context, profile *models.UserProfile, onDay generation.DayCallback) (*generation.GenerationResult, error) {
	g.mu.Lock()
	g.generateCalls++
	fn := g.generateFn
	g.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected full generation call")
	}
	return fn(ctx, profile, onDay)
}

func (g *scriptedGenerator) ContinueGeneratingDays(ctx context.Context, d *models.Devotional, profile *models.UserProfile, expectedTotal int, onDay generation.DayCallback) ([]models.DevotionalDay, error) {
	g.mu.Lock()
	g.continueCalls++
	var fn continueFunc
	if len(g.continueFns) > 0 {
		fn = g.continueFns[0]
		g.continueFns = g.continueFns[1:]
	}
	g.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected continuation call")
	}
	return fn(ctx, d, profile, expectedTotal, onDay)
}

func (g *scriptedGenerator) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generateCalls, g.continueCalls
}

// --- event / push collectors ---

type eventCollector struct {
	mu     sync.Mutex
	events []delivery.ProgressEvent
}

func (e *eventCollector) NotifyUser(_ string, ev delivery.ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventCollector) byType(t string) []delivery.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []delivery.ProgressEvent
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PushEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.PushEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) byKind(kind models.PushEventKind) []models.PushEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.PushEvent
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// --- fake clock ---

// fakeClock — управляемое время: таймеры срабатывают только при Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) delivery.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance продвигает время и синхронно выполняет созревшие таймеры.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				due = t
				break
			}
		}
		if due != nil {
			due.fired = true
		}
		c.mu.Unlock()

		if due == nil {
			return
		}
		due.fn()
	}
}

func (c *fakeClock) recordedDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// --- fake connectivity ---

type fakeOnline struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func newFakeOnline(online bool) *fakeOnline {
	return &fakeOnline{online: online}
}

func (o *fakeOnline) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *fakeOnline) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

func (o *fakeOnline) set(online bool) {
	o.mu.Lock()
	o.online = online
	subs := o.subs
	o.mu.Unlock()
	for _, ch := range subs {
		ch <- online
	}
}

// --- environment ---

type env struct {
	store     *database.MemoryDevotionalStore
	sessions  *database.MemorySessionRepository
	tracker   *session.Tracker
	registry  *generation.ActiveRegistry
	gen       *scriptedGenerator
	notifier  *eventCollector
	publisher *recordingPublisher
	clock     *fakeClock
	online    *fakeOnline

	controller *delivery.Controller
	scheduler  *delivery.Scheduler
}

func testRetryConfig() *config.Config {
	return &config.Config{
		ContinuationBaseDelay:  15 * time.Second,
		ContinuationMaxDelay:   60 * time.Second,
		ContinuationMaxRetries: 3,
	}
}

// newEnv собирает контроллер и планировщик на in-memory сторах.
// Планировщик создается всегда, но к контроллеру подключается только
// через wireScheduler — часть тестов проверяет контроллер изолированно.
func newEnv() *env {
	logger := zap.NewNop()
	e := &env{
		store:     database.NewMemoryDevotionalStore(),
		sessions:  database.NewMemorySessionRepository(),
		registry:  generation.NewActiveRegistry(),
		gen:       &scriptedGenerator{},
		notifier:  &eventCollector{},
		publisher: &recordingPublisher{},
		clock:     newFakeClock(),
		online:    newFakeOnline(true),
	}
	e.tracker = session.NewTracker(e.sessions, logger)
	e.controller = delivery.NewController(e.gen, e.registry, e.store, e.tracker, e.notifier, e.publisher, logger)
	e.scheduler = delivery.NewScheduler(e.controller, e.store, e.online, e.clock, testRetryConfig(), logger)
	return e
}

func (e *env) wireScheduler() {
	e.controller.SetRetryEvaluator(e.scheduler)
}

// --- model helpers ---

func day(n int) models.DevotionalDay {
	return models.DevotionalDay{
		DayNumber:          n,
		Title:              fmt.Sprintf("Day %d", n),
		ScriptureReference: fmt.Sprintf("Psalm %d:1", n),
		Body:               fmt.Sprintf("body %d", n),
	}
}

func dayWithBody(n int, body string) models.DevotionalDay {
	d := day(n)
	d.Body = body
	return d
}

func days(from, to int) []models.DevotionalDay {
	var out []models.DevotionalDay
	for n := from; n <= to; n++ {
		out = append(out, day(n))
	}
	return out
}

func profileOfLength(userID string, length int) *models.UserProfile {
	return &models.UserProfile{
		UserID:           userID,
		SeekingText:      "strength for a new season",
		Translation:      "NIV",
		DevotionalLength: length,
		ReadingDuration:  "5 minutes",
	}
}

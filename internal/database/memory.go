package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// Стейтфул in-memory реализации сторов. Используются в тестах оркестрации,
// где важна именно последовательность состояний стора, и в dev-режиме
// без внешних зависимостей.

// MemoryDevotionalStore — потокобезопасный DevotionalStore в памяти.
type MemoryDevotionalStore struct {
	mu          sync.Mutex
	devotionals map[uuid.UUID]*models.Devotional
	scriptures  map[string][]models.ScriptureRef
}

// NewMemoryDevotionalStore создает пустой стор.
func NewMemoryDevotionalStore() *MemoryDevotionalStore {
	return &MemoryDevotionalStore{
		devotionals: make(map[uuid.UUID]*models.Devotional),
		scriptures:  make(map[string][]models.ScriptureRef),
	}
}

var _ interfaces.DevotionalStore = (*MemoryDevotionalStore)(nil)

func (s *MemoryDevotionalStore) AddDevotional(_ context.Context, d *models.Devotional) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devotionals[d.ID]; exists {
		return models.ErrBadRequest
	}
	s.devotionals[d.ID] = cloneDevotional(d)
	return nil
}

func (s *MemoryDevotionalStore) GetDevotional(_ context.Context, id uuid.UUID) (*models.Devotional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devotionals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneDevotional(d), nil
}

func (s *MemoryDevotionalStore) ListDevotionals(_ context.Context, userID string) ([]models.Devotional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Devotional
	for _, d := range s.devotionals {
		if d.UserID == userID {
			result = append(result, *cloneDevotional(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryDevotionalStore) UpdateDevotionalDays(_ context.Context, id uuid.UUID, days []models.DevotionalDay, title *string, totalDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devotionals[id]
	if !ok {
		return models.ErrNotFound
	}
	d.Days = append([]models.DevotionalDay(nil), days...)
	if title != nil {
		d.Title = *title
	}
	d.TotalDays = totalDays
	return nil
}

func (s *MemoryDevotionalStore) MarkDayAsRead(_ context.Context, id uuid.UUID, dayNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devotionals[id]
	if !ok {
		return models.ErrNotFound
	}
	for i := range d.Days {
		if d.Days[i].DayNumber == dayNumber {
			if !d.Days[i].IsRead {
				now := time.Now().UTC()
				d.Days[i].IsRead = true
				d.Days[i].ReadAt = &now
			}
			if dayNumber >= d.CurrentDay && dayNumber < d.TotalDays {
				d.CurrentDay = dayNumber + 1
			}
			return nil
		}
	}
	return models.ErrDayNotFound
}

func (s *MemoryDevotionalStore) CurrentStreak(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dates []time.Time
	for _, d := range s.devotionals {
		if d.UserID != userID {
			continue
		}
		for _, day := range d.Days {
			if day.ReadAt != nil {
				dates = append(dates, *day.ReadAt)
			}
		}
	}
	return currentStreak(dates, time.Now()), nil
}

func (s *MemoryDevotionalStore) AddUsedScriptures(_ context.Context, userID string, refs []models.ScriptureRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scriptures[userID] = append(refs, s.scriptures[userID]...)
	return nil
}

func (s *MemoryDevotionalStore) GetRecentScriptures(_ context.Context, userID string, limit int) ([]models.ScriptureRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.scriptures[userID]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return append([]models.ScriptureRef(nil), refs...), nil
}

func cloneDevotional(d *models.Devotional) *models.Devotional {
	c := *d
	c.Days = append([]models.DevotionalDay(nil), d.Days...)
	return &c
}

// MemorySessionRepository — потокобезопасный SessionRepository в памяти.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.GenerationSession
}

// NewMemorySessionRepository создает пустой репозиторий сессий.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*models.GenerationSession),
	}
}

var _ interfaces.SessionRepository = (*MemorySessionRepository)(nil)

func (r *MemorySessionRepository) Get(_ context.Context, userID string) (*models.GenerationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *s
	c.GeneratedDays = append([]int(nil), s.GeneratedDays...)
	return &c, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, session *models.GenerationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *session
	c.GeneratedDays = append([]int(nil), session.GeneratedDays...)
	r.sessions[session.UserID] = &c
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

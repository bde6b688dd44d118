package generation

import (
	"sync"

	"github.com/google/uuid"
)

// ActiveRegistry отслеживает серии, для которых прямо сейчас идет генерация.
// Гарантирует, что на одну серию запущен максимум один процесс генерации
// в пределах инстанса.
type ActiveRegistry struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewActiveRegistry создает новый пустой реестр.
func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{
		active: make(map[uuid.UUID]struct{}),
	}
}

// TryAcquire пытается занять слот генерации для серии.
// Возвращает false, если генерация для нее уже идет.
func (r *ActiveRegistry) TryAcquire(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[id]; exists {
		return false
	}
	r.active[id] = struct{}{}
	return true
}

// Release освобождает слот. Повторный Release безопасен.
func (r *ActiveRegistry) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// IsActive сообщает, идет ли сейчас генерация для серии.
func (r *ActiveRegistry) IsActive(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.active[id]
	return exists
}

// Count возвращает число активных генераций (для метрик и логов).
func (r *ActiveRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor отслеживает доступность внешней сети. Состояние обновляется
// периодическим HTTP-пробником и может быть выставлено вручную
// (например, по сигналу от клиента).
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger

	mu          sync.RWMutex
	online      bool
	subscribers []chan bool
}

// NewMonitor создает монитор. Начальное состояние — online: пессимизм
// на старте приводил бы к ложному подавлению повторов.
func NewMonitor(probeURL string, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger.Named("ConnectivityMonitor"),
		online:   true,
	}
}

// Online сообщает последнее известное состояние сети.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe возвращает канал, в который приходит новое состояние при каждой
// смене online/offline. Канал буферизован, медленный подписчик теряет
// промежуточные переходы, но не блокирует монитор.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// SetOnline выставляет состояние вручную и уведомляет подписчиков при смене.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subscribers
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("Connectivity state changed", zap.Bool("online", online))
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Run запускает периодический пробник до отмены контекста.
func (m *Monitor) Run(ctx context.Context) {
	if m.probeURL == "" || m.interval <= 0 {
		m.logger.Info("Connectivity probing disabled")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

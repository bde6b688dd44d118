package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"devotional-server/internal/delivery"
)

// Manager управляет WebSocket-соединениями и доставляет события прогресса
// генерации подключенным клиентам. Реализует delivery.ProgressNotifier.
type Manager struct {
	clients      map[uuid.UUID]*client
	register     chan *client
	unregister   chan *client
	outbound     chan userMessage
	userIDHeader string
	logger       *zap.Logger
	mu           sync.RWMutex
}

type client struct {
	id      uuid.UUID
	userID  string
	conn    *websocket.Conn
	manager *Manager
	send    chan []byte
}

type userMessage struct {
	userID string
	data   []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Внешний периметр закрывает gateway
		return true
	},
}

// NewManager создает менеджер соединений. userIDHeader — заголовок,
// которым gateway передает идентификатор пользователя.
func NewManager(userIDHeader string, logger *zap.Logger) *Manager {
	return &Manager{
		clients:      make(map[uuid.UUID]*client),
		register:     make(chan *client),
		unregister:   make(chan *client),
		outbound:     make(chan userMessage, 64),
		userIDHeader: userIDHeader,
		logger:       logger.Named("WSManager"),
	}
}

// Start запускает цикл менеджера в отдельной горутине.
func (m *Manager) Start() {
	go m.run()
}

func (m *Manager) run() {
	for {
		select {
		case c := <-m.register:
			m.mu.Lock()
			m.clients[c.id] = c
			m.mu.Unlock()
			m.logger.Debug("Client connected", zap.String("userID", c.userID))

		case c := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[c.id]; ok {
				close(c.send)
				delete(m.clients, c.id)
				m.logger.Debug("Client disconnected", zap.String("userID", c.userID))
			}
			m.mu.Unlock()

		case msg := <-m.outbound:
			// Полная блокировка: медленный клиент удаляется из map прямо здесь
			m.mu.Lock()
			for _, c := range m.clients {
				if c.userID != msg.userID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Медленный клиент — отключаем, сам переподключится
					close(c.send)
					delete(m.clients, c.id)
				}
			}
			m.mu.Unlock()
		}
	}
}

var _ delivery.ProgressNotifier = (*Manager)(nil)

// NotifyUser отправляет событие прогресса всем соединениям пользователя.
// Доставка best effort: при переполнении исходящего буфера событие
// отбрасывается, клиент дочитает состояние из стора.
func (m *Manager) NotifyUser(userID string, event delivery.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Failed to marshal progress event", zap.Error(err))
		return
	}
	select {
	case m.outbound <- userMessage{userID: userID, data: data}:
	default:
		m.logger.Warn("Outbound websocket queue full, dropping event",
			zap.String("userID", userID),
			zap.String("type", event.Type),
		)
	}
}

// Handler обрабатывает новые WebSocket-соединения.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(m.userIDHeader)
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.Warn("Failed to upgrade connection", zap.Error(err))
			return
		}

		c := &client{
			id:      uuid.New(),
			userID:  userID,
			conn:    conn,
			manager: m,
			send:    make(chan []byte, 256),
		}
		m.register <- c

		go c.readPump()
		go c.writePump()
	})
}

func (c *client) readPump() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		// Клиент ничего осмысленного не шлет, читаем только ради
		// обнаружения разрыва соединения.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Debug("Read error", zap.String("userID", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"devotional-server/internal/connectivity"
	"devotional-server/internal/delivery"
	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
	"devotional-server/internal/session"
)

// Handler — HTTP-поверхность сервиса. Аутентификацию выполняет gateway,
// сюда запросы приходят уже с идентификатором пользователя в заголовке.
type Handler struct {
	controller *delivery.Controller
	scheduler  *delivery.Scheduler
	store      interfaces.DevotionalStore
	journal    interfaces.JournalStore
	tracker    *session.Tracker
	monitor    *connectivity.Monitor
	wsHandler  http.Handler
	logger     *zap.Logger
}

// NewHandler создает HTTP-обработчик.
func NewHandler(
	controller *delivery.Controller,
	scheduler *delivery.Scheduler,
	store interfaces.DevotionalStore,
	journal interfaces.JournalStore,
	tracker *session.Tracker,
	monitor *connectivity.Monitor,
	wsHandler http.Handler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		controller: controller,
		scheduler:  scheduler,
		store:      store,
		journal:    journal,
		tracker:    tracker,
		monitor:    monitor,
		wsHandler:  wsHandler,
		logger:     logger.Named("APIHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *Handler) RegisterRoutes(router *gin.Engine, userIDHeader string) {
	authed := router.Group("/api", UserIDMiddleware(userIDHeader))
	{
		authed.POST("/devotionals/generate", h.generateDevotional)
		authed.GET("/devotionals", h.listDevotionals)
		authed.GET("/devotionals/:id", h.getDevotional)
		authed.POST("/devotionals/:id/continue", h.continueDevotional)
		authed.GET("/devotionals/:id/retry-status", h.retryStatus)
		authed.POST("/devotionals/:id/days/:day/read", h.markDayAsRead)
		authed.GET("/streak", h.currentStreak)
		authed.POST("/devotionals/start-over", h.startOver)
		authed.GET("/generation-session", h.getSession)
		authed.POST("/connectivity", h.reportConnectivity)

		authed.POST("/journal", h.addJournalEntry)
		authed.PUT("/journal/:id", h.updateJournalEntry)
		authed.GET("/devotionals/:id/journal", h.listJournalEntries)

		authed.POST("/bookmarks", h.addBookmark)
		authed.DELETE("/bookmarks/:id", h.removeBookmark)
		authed.GET("/bookmarks", h.listBookmarks)

		authed.POST("/highlights", h.addHighlight)
		authed.DELETE("/highlights/:id", h.removeHighlight)
		authed.GET("/devotionals/:id/highlights", h.listHighlights)
	}

	router.GET("/ws", gin.WrapH(h.wsHandler))
}

// --- Generation ---

type generateRequest struct {
	SeekingText      string `json:"seekingText" binding:"required"`
	EmotionalState   string `json:"emotionalState"`
	ReadingDuration  string `json:"readingDuration"`
	DevotionalLength int    `json:"devotionalLength"`
	Translation      string `json:"translation"`
	Theme            string `json:"theme"`
	Type             string `json:"type"`
	Subject          string `json:"subject"`
	Language         string `json:"language"`
}

func (h *Handler) generateDevotional(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	profile := &models.UserProfile{
		UserID:           currentUserID(c),
		SeekingText:      req.SeekingText,
		EmotionalState:   req.EmotionalState,
		ReadingDuration:  req.ReadingDuration,
		DevotionalLength: req.DevotionalLength,
		Translation:      req.Translation,
		Theme:            req.Theme,
		Type:             req.Type,
		Subject:          req.Subject,
		Language:         req.Language,
	}

	id, err := h.controller.Begin(c.Request.Context(), profile)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"devotionalId": id})
}

func (h *Handler) listDevotionals(c *gin.Context) {
	devotionals, err := h.store.ListDevotionals(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to list devotionals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devotionals": devotionals})
}

func (h *Handler) getDevotional(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	d, err := h.store.GetDevotional(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": "devotional not found"})
		return
	}
	if d.UserID != currentUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "devotional not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

type continueRequest struct {
	DevotionalLength int `json:"devotionalLength"`
}

// continueDevotional — ручной повтор догенерации. Сбрасывает счетчик
// автоповторов и запускает переоценку в фоне.
func (h *Handler) continueDevotional(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req continueRequest
	_ = c.ShouldBindJSON(&req)

	userID := currentUserID(c)
	h.scheduler.ResetForManualRetry(id)
	go h.scheduler.Evaluate(userID, id, req.DevotionalLength)

	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (h *Handler) retryStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	status, exists := h.scheduler.Status(id)
	if !exists {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "retry": status})
}

func (h *Handler) markDayAsRead(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	day, ok := parseIntParam(c, "day")
	if !ok {
		return
	}

	d, err := h.store.GetDevotional(c.Request.Context(), id)
	if err != nil || d.UserID != currentUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "devotional not found"})
		return
	}

	if err := h.store.MarkDayAsRead(c.Request.Context(), id, day); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// currentStreak отдает длину текущей серии чтения пользователя.
func (h *Handler) currentStreak(c *gin.Context) {
	streak, err := h.store.CurrentStreak(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to compute reading streak", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"currentStreak": streak})
}

func (h *Handler) startOver(c *gin.Context) {
	if err := h.controller.StartOver(c.Request.Context(), currentUserID(c)); err != nil {
		h.logger.Error("Failed to start over", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getSession(c *gin.Context) {
	s, err := h.tracker.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, s)
}

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// reportConnectivity принимает сигнал о состоянии сети от клиента.
func (h *Handler) reportConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.monitor.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Journal / Bookmarks / Highlights ---

type journalEntryRequest struct {
	DevotionalID uuid.UUID `json:"devotionalId" binding:"required"`
	DayNumber    int       `json:"dayNumber" binding:"required"`
	Text         string    `json:"text" binding:"required"`
}

func (h *Handler) addJournalEntry(c *gin.Context) {
	var req journalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry := &models.JournalEntry{
		UserID:       currentUserID(c),
		DevotionalID: req.DevotionalID,
		DayNumber:    req.DayNumber,
		Text:         req.Text,
	}
	if err := h.journal.AddJournalEntry(c.Request.Context(), entry); err != nil {
		h.logger.Error("Failed to add journal entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type journalUpdateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) updateJournalEntry(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req journalUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.journal.UpdateJournalEntry(c.Request.Context(), id, currentUserID(c), req.Text); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listJournalEntries(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.journal.ListJournalEntries(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.logger.Error("Failed to list journal entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type bookmarkRequest struct {
	DevotionalID uuid.UUID `json:"devotionalId" binding:"required"`
	DayNumber    int       `json:"dayNumber" binding:"required"`
}

func (h *Handler) addBookmark(c *gin.Context) {
	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	b := &models.Bookmark{
		UserID:       currentUserID(c),
		DevotionalID: req.DevotionalID,
		DayNumber:    req.DayNumber,
	}
	if err := h.journal.AddBookmark(c.Request.Context(), b); err != nil {
		h.logger.Error("Failed to add bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) removeBookmark(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.journal.RemoveBookmark(c.Request.Context(), id, currentUserID(c)); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listBookmarks(c *gin.Context) {
	bookmarks, err := h.journal.ListBookmarks(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("Failed to list bookmarks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks})
}

type highlightRequest struct {
	DevotionalID uuid.UUID `json:"devotionalId" binding:"required"`
	DayNumber    int       `json:"dayNumber" binding:"required"`
	Text         string    `json:"text" binding:"required"`
	StartOffset  int       `json:"startOffset"`
	EndOffset    int       `json:"endOffset"`
}

func (h *Handler) addHighlight(c *gin.Context) {
	var req highlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	hl := &models.Highlight{
		UserID:       currentUserID(c),
		DevotionalID: req.DevotionalID,
		DayNumber:    req.DayNumber,
		Text:         req.Text,
		StartOffset:  req.StartOffset,
		EndOffset:    req.EndOffset,
	}
	if err := h.journal.AddHighlight(c.Request.Context(), hl); err != nil {
		h.logger.Error("Failed to add highlight", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, hl)
}

func (h *Handler) removeHighlight(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.journal.RemoveHighlight(c.Request.Context(), id, currentUserID(c)); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listHighlights(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	highlights, err := h.journal.ListHighlights(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.logger.Error("Failed to list highlights", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": highlights})
}

// --- helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

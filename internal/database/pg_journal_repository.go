package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

const (
	sqlInsertJournalEntry = `
		INSERT INTO journal_entries (id, user_id, devotional_id, day_number, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	sqlUpdateJournalEntry = `
		UPDATE journal_entries
		SET text = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	sqlListJournalEntries = `
		SELECT id, user_id, devotional_id, day_number, text, created_at, updated_at
		FROM journal_entries
		WHERE user_id = $1 AND devotional_id = $2
		ORDER BY day_number, created_at`

	sqlInsertBookmark = `
		INSERT INTO bookmarks (id, user_id, devotional_id, day_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, devotional_id, day_number) DO NOTHING`

	sqlDeleteBookmark = `
		DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`

	sqlListBookmarks = `
		SELECT id, user_id, devotional_id, day_number, created_at
		FROM bookmarks
		WHERE user_id = $1
		ORDER BY created_at DESC`

	sqlInsertHighlight = `
		INSERT INTO highlights (id, user_id, devotional_id, day_number, text, start_offset, end_offset, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	sqlDeleteHighlight = `
		DELETE FROM highlights WHERE id = $1 AND user_id = $2`

	sqlListHighlights = `
		SELECT id, user_id, devotional_id, day_number, text, start_offset, end_offset, created_at
		FROM highlights
		WHERE user_id = $1 AND devotional_id = $2
		ORDER BY day_number, start_offset`
)

// PgJournalRepository реализует interfaces.JournalStore поверх PostgreSQL.
type PgJournalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgJournalRepository создает новый репозиторий дневника.
func NewPgJournalRepository(db *pgxpool.Pool, logger *zap.Logger) *PgJournalRepository {
	return &PgJournalRepository{
		db:     db,
		logger: logger.Named("PgJournalRepository"),
	}
}

var _ interfaces.JournalStore = (*PgJournalRepository)(nil)

func (r *PgJournalRepository) AddJournalEntry(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := r.db.Exec(ctx, sqlInsertJournalEntry,
		entry.ID, entry.UserID, entry.DevotionalID, entry.DayNumber, entry.Text, now)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

func (r *PgJournalRepository) UpdateJournalEntry(ctx context.Context, id uuid.UUID, userID string, text string) error {
	tag, err := r.db.Exec(ctx, sqlUpdateJournalEntry, id, userID, text)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgJournalRepository) ListJournalEntries(ctx context.Context, userID string, devotionalID uuid.UUID) ([]models.JournalEntry, error) {
	rows, err := r.db.Query(ctx, sqlListJournalEntries, userID, devotionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.DevotionalID, &e.DayNumber, &e.Text, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PgJournalRepository) AddBookmark(ctx context.Context, b *models.Bookmark) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, sqlInsertBookmark, b.ID, b.UserID, b.DevotionalID, b.DayNumber, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return nil
}

func (r *PgJournalRepository) RemoveBookmark(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.db.Exec(ctx, sqlDeleteBookmark, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgJournalRepository) ListBookmarks(ctx context.Context, userID string) ([]models.Bookmark, error) {
	rows, err := r.db.Query(ctx, sqlListBookmarks, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []models.Bookmark
	for rows.Next() {
		var b models.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.DevotionalID, &b.DayNumber, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

func (r *PgJournalRepository) AddHighlight(ctx context.Context, h *models.Highlight) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, sqlInsertHighlight,
		h.ID, h.UserID, h.DevotionalID, h.DayNumber, h.Text, h.StartOffset, h.EndOffset, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert highlight: %w", err)
	}
	return nil
}

func (r *PgJournalRepository) RemoveHighlight(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.db.Exec(ctx, sqlDeleteHighlight, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete highlight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgJournalRepository) ListHighlights(ctx context.Context, userID string, devotionalID uuid.UUID) ([]models.Highlight, error) {
	rows, err := r.db.Query(ctx, sqlListHighlights, userID, devotionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}
	defer rows.Close()

	var highlights []models.Highlight
	for rows.Next() {
		var h models.Highlight
		if err := rows.Scan(&h.ID, &h.UserID, &h.DevotionalID, &h.DayNumber, &h.Text, &h.StartOffset, &h.EndOffset, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

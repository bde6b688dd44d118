package interfaces

import (
	"context"

	"github.com/google/uuid"

	"devotional-server/internal/models"
)

// JournalStore хранит дневниковые записи, закладки и выделения пользователя.
type JournalStore interface {
	AddJournalEntry(ctx context.Context, entry *models.JournalEntry) error
	UpdateJournalEntry(ctx context.Context, id uuid.UUID, userID string, text string) error
	ListJournalEntries(ctx context.Context, userID string, devotionalID uuid.UUID) ([]models.JournalEntry, error)

	AddBookmark(ctx context.Context, b *models.Bookmark) error
	RemoveBookmark(ctx context.Context, id uuid.UUID, userID string) error
	ListBookmarks(ctx context.Context, userID string) ([]models.Bookmark, error)

	AddHighlight(ctx context.Context, h *models.Highlight) error
	RemoveHighlight(ctx context.Context, id uuid.UUID, userID string) error
	ListHighlights(ctx context.Context, userID string, devotionalID uuid.UUID) ([]models.Highlight, error)
}

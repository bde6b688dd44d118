package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// SQL-запросы для девоционалов. Дни храним одной jsonb-колонкой: серия
// читается и переписывается целиком, построчное хранение дней не нужно.
const (
	sqlInsertDevotional = `
		INSERT INTO devotionals (id, user_id, title, total_days, current_day, days, seeking_text, translation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	sqlGetDevotional = `
		SELECT id, user_id, title, total_days, current_day, days, seeking_text, translation, created_at
		FROM devotionals
		WHERE id = $1`

	sqlListDevotionals = `
		SELECT id, user_id, title, total_days, current_day, days, seeking_text, translation, created_at
		FROM devotionals
		WHERE user_id = $1
		ORDER BY created_at DESC`

	sqlUpdateDevotionalDays = `
		UPDATE devotionals
		SET days = $2,
		    title = COALESCE($3, title),
		    total_days = $4,
		    updated_at = NOW()
		WHERE id = $1`

	sqlLockDevotionalDays = `
		SELECT days, current_day, total_days
		FROM devotionals
		WHERE id = $1
		FOR UPDATE`

	sqlSaveDevotionalDays = `
		UPDATE devotionals
		SET days = $2, current_day = $3, updated_at = NOW()
		WHERE id = $1`

	sqlInsertUsedScripture = `
		INSERT INTO used_scriptures (user_id, reference, translation, used_at)
		VALUES ($1, $2, $3, NOW())`

	sqlGetRecentScriptures = `
		SELECT reference, translation
		FROM used_scriptures
		WHERE user_id = $1
		ORDER BY used_at DESC
		LIMIT $2`

	sqlSelectReadDates = `
		SELECT DISTINCT ((day->>'read_at')::timestamptz AT TIME ZONE 'UTC')::date
		FROM devotionals, jsonb_array_elements(days) AS day
		WHERE user_id = $1 AND day->>'read_at' IS NOT NULL
		ORDER BY 1 DESC`
)

// PgDevotionalRepository реализует interfaces.DevotionalStore поверх PostgreSQL.
type PgDevotionalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgDevotionalRepository создает новый репозиторий девоционалов.
func NewPgDevotionalRepository(db *pgxpool.Pool, logger *zap.Logger) *PgDevotionalRepository {
	return &PgDevotionalRepository{
		db:     db,
		logger: logger.Named("PgDevotionalRepository"),
	}
}

var _ interfaces.DevotionalStore = (*PgDevotionalRepository)(nil)

// AddDevotional вставляет новую серию.
func (r *PgDevotionalRepository) AddDevotional(ctx context.Context, d *models.Devotional) error {
	daysJSON, err := json.Marshal(d.Days)
	if err != nil {
		return fmt.Errorf("failed to marshal devotional days: %w", err)
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.Exec(ctx, sqlInsertDevotional,
		d.ID, d.UserID, d.Title, d.TotalDays, d.CurrentDay, daysJSON, d.SeekingText, d.Translation, createdAt)
	if err != nil {
		r.logger.Error("Failed to insert devotional", zap.String("devotionalID", d.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to insert devotional: %w", err)
	}

	r.logger.Debug("Devotional inserted",
		zap.String("devotionalID", d.ID.String()),
		zap.String("userID", d.UserID),
		zap.Int("days", len(d.Days)),
	)
	return nil
}

// GetDevotional возвращает серию по id или models.ErrNotFound.
func (r *PgDevotionalRepository) GetDevotional(ctx context.Context, id uuid.UUID) (*models.Devotional, error) {
	row := r.db.QueryRow(ctx, sqlGetDevotional, id)
	d, err := scanDevotional(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get devotional", zap.String("devotionalID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get devotional: %w", err)
	}
	return d, nil
}

// ListDevotionals возвращает серии пользователя, новые первыми.
func (r *PgDevotionalRepository) ListDevotionals(ctx context.Context, userID string) ([]models.Devotional, error) {
	rows, err := r.db.Query(ctx, sqlListDevotionals, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devotionals: %w", err)
	}
	defer rows.Close()

	var result []models.Devotional
	for rows.Next() {
		d, err := scanDevotional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan devotional: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// UpdateDevotionalDays заменяет список дней и, опционально, заголовок и
// целевую длину. Остальные поля не трогает.
func (r *PgDevotionalRepository) UpdateDevotionalDays(ctx context.Context, id uuid.UUID, days []models.DevotionalDay, title *string, totalDays int) error {
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to marshal devotional days: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlUpdateDevotionalDays, id, daysJSON, title, totalDays)
	if err != nil {
		r.logger.Error("Failed to update devotional days", zap.String("devotionalID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update devotional days: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkDayAsRead помечает день прочитанным и продвигает currentDay.
// Читаем и переписываем jsonb под блокировкой строки.
func (r *PgDevotionalRepository) MarkDayAsRead(ctx context.Context, id uuid.UUID, dayNumber int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var daysJSON []byte
	var currentDay, totalDays int
	if err := tx.QueryRow(ctx, sqlLockDevotionalDays, id).Scan(&daysJSON, &currentDay, &totalDays); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to lock devotional: %w", err)
	}

	var days []models.DevotionalDay
	if err := json.Unmarshal(daysJSON, &days); err != nil {
		return fmt.Errorf("failed to unmarshal devotional days: %w", err)
	}

	found := false
	now := time.Now().UTC()
	for i := range days {
		if days[i].DayNumber == dayNumber {
			found = true
			if !days[i].IsRead {
				days[i].IsRead = true
				days[i].ReadAt = &now
			}
			break
		}
	}
	if !found {
		return models.ErrDayNotFound
	}

	if dayNumber >= currentDay && dayNumber < totalDays {
		currentDay = dayNumber + 1
	}

	updated, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to marshal devotional days: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlSaveDevotionalDays, id, updated, currentDay); err != nil {
		return fmt.Errorf("failed to save devotional days: %w", err)
	}

	return tx.Commit(ctx)
}

// AddUsedScriptures дописывает ссылки в историю использованных мест Писания.
func (r *PgDevotionalRepository) AddUsedScriptures(ctx context.Context, userID string, refs []models.ScriptureRef) error {
	for _, ref := range refs {
		if ref.Reference == "" {
			continue
		}
		if _, err := r.db.Exec(ctx, sqlInsertUsedScripture, userID, ref.Reference, ref.Translation); err != nil {
			return fmt.Errorf("failed to insert used scripture: %w", err)
		}
	}
	return nil
}

// GetRecentScriptures возвращает до limit последних использованных ссылок.
func (r *PgDevotionalRepository) GetRecentScriptures(ctx context.Context, userID string, limit int) ([]models.ScriptureRef, error) {
	rows, err := r.db.Query(ctx, sqlGetRecentScriptures, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent scriptures: %w", err)
	}
	defer rows.Close()

	var refs []models.ScriptureRef
	for rows.Next() {
		var ref models.ScriptureRef
		if err := rows.Scan(&ref.Reference, &ref.Translation); err != nil {
			return nil, fmt.Errorf("failed to scan scripture ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CurrentStreak возвращает длину текущей серии чтения пользователя в днях.
func (r *PgDevotionalRepository) CurrentStreak(ctx context.Context, userID string) (int, error) {
	rows, err := r.db.Query(ctx, sqlSelectReadDates, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load read dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return 0, fmt.Errorf("failed to scan read date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return currentStreak(dates, time.Now()), nil
}

// scanDevotional сканирует строку devotionals в модель.
func scanDevotional(row pgx.Row) (*models.Devotional, error) {
	var d models.Devotional
	var daysJSON []byte
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.TotalDays, &d.CurrentDay, &daysJSON, &d.SeekingText, &d.Translation, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(daysJSON) > 0 {
		if err := json.Unmarshal(daysJSON, &d.Days); err != nil {
			return nil, fmt.Errorf("failed to unmarshal devotional days: %w", err)
		}
	}
	return &d, nil
}

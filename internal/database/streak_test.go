package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional-server/internal/models"
)

func TestCurrentStreak(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	tests := []struct {
		name  string
		dates []time.Time
		want  int
	}{
		{"no reads", nil, 0},
		{"read today only", []time.Time{day(0)}, 1},
		{"three consecutive days ending today", []time.Time{day(0), day(-1), day(-2)}, 3},
		// Вчерашнее чтение держит серию: сегодняшнее еще впереди
		{"streak ending yesterday", []time.Time{day(-1), day(-2)}, 2},
		{"gap breaks streak", []time.Time{day(0), day(-1), day(-3), day(-4)}, 2},
		{"last read two days ago", []time.Time{day(-2), day(-3)}, 0},
		// Несколько чтений в одну дату считаются одним днем
		{"duplicates within a day", []time.Time{day(0), day(0).Add(2 * time.Hour), day(-1)}, 2},
		// Даты нормализуются к UTC
		{"non-utc timestamps", []time.Time{day(0).In(time.FixedZone("MSK", 3*3600)), day(-1)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currentStreak(tt.dates, now))
		})
	}
}

func TestMemoryStore_MarkDayAsReadFeedsStreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDevotionalStore()
	id := uuid.New()

	require.NoError(t, store.AddDevotional(ctx, &models.Devotional{
		ID: id, UserID: "u1", Title: "T", TotalDays: 3, CurrentDay: 1,
		Days: []models.DevotionalDay{
			{DayNumber: 1, Body: "b"}, {DayNumber: 2, Body: "b"}, {DayNumber: 3, Body: "b"},
		},
		CreatedAt: time.Now().UTC(),
	}))

	streak, err := store.CurrentStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, streak)

	require.NoError(t, store.MarkDayAsRead(ctx, id, 1))

	d, err := store.GetDevotional(ctx, id)
	require.NoError(t, err)
	require.True(t, d.Days[0].IsRead)
	require.NotNil(t, d.Days[0].ReadAt)
	assert.Equal(t, 2, d.CurrentDay)

	// Повторная пометка не сдвигает исходный момент прочтения
	firstReadAt := *d.Days[0].ReadAt
	require.NoError(t, store.MarkDayAsRead(ctx, id, 1))
	d, err = store.GetDevotional(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, firstReadAt, *d.Days[0].ReadAt)

	streak, err = store.CurrentStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak)

	// Чужие чтения в серию не попадают
	streak, err = store.CurrentStreak(ctx, "someone-else")
	require.NoError(t, err)
	assert.Zero(t, streak)
}

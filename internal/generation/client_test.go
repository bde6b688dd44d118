package generation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devotional-server/internal/config"
	"devotional-server/internal/database"
	"devotional-server/internal/generation"
	"devotional-server/internal/mocks"
	"devotional-server/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		GenerationBatchSize:  3,
		AIMaxAttempts:        3,
		AIBaseRetryDelay:     time.Millisecond,
		RecentScriptureLimit: 30,
	}
}

func testProfile() *models.UserProfile {
	return &models.UserProfile{
		UserID:           "user-1",
		SeekingText:      "peace in a stressful season",
		Translation:      "NIV",
		DevotionalLength: 7,
		ReadingDuration:  "5 minutes",
	}
}

// batchResponse собирает JSON-ответ модели для дней [from..to].
func batchResponse(title string, from, to int) string {
	out := fmt.Sprintf(`{"title": %q, "days": [`, title)
	for n := from; n <= to; n++ {
		if n > from {
			out += ","
		}
		out += fmt.Sprintf(`{"dayNumber": %d, "title": "Day %d", "scriptureReference": "Psalm %d:1", "scriptureText": "text", "body": "body %d", "closingPrayer": "Amen"}`, n, n, n, n)
	}
	return out + "]}"
}

func TestGenerateDevotional_BatchesAndCallbacks(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	client := generation.NewClient(ai, store, testConfig(), zap.NewNop())

	ai.On("GenerateText", mock.Anything, "user-1", mock.Anything, mock.Anything, mock.Anything).
		Return(batchResponse("Peace for Today", 1, 3), generation.UsageInfo{}, nil).Once()
	ai.On("GenerateText", mock.Anything, "user-1", mock.Anything, mock.Anything, mock.Anything).
		Return(batchResponse("Peace for Today", 4, 6), generation.UsageInfo{}, nil).Once()
	ai.On("GenerateText", mock.Anything, "user-1", mock.Anything, mock.Anything, mock.Anything).
		Return(batchResponse("Peace for Today", 7, 7), generation.UsageInfo{}, nil).Once()

	var gotDays []int
	var gotTitles []string
	res, err := client.GenerateDevotional(context.Background(), testProfile(), func(day models.DevotionalDay, seriesTitle string) {
		gotDays = append(gotDays, day.DayNumber)
		gotTitles = append(gotTitles, seriesTitle)
	})

	require.NoError(t, err)
	assert.Equal(t, "Peace for Today", res.Title)
	assert.Len(t, res.Days, 7)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, gotDays)
	// Заголовок серии известен начиная с первой партии
	assert.Equal(t, "Peace for Today", gotTitles[0])
	ai.AssertExpectations(t)
}

func TestGenerateDevotional_RetriesTransientFailure(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	cfg := testConfig()
	cfg.GenerationBatchSize = 7
	client := generation.NewClient(ai, store, cfg, zap.NewNop())

	ai.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", generation.UsageInfo{}, errors.New("connection refused")).Once()
	ai.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(batchResponse("Second Try", 1, 7), generation.UsageInfo{}, nil).Once()

	calls := 0
	res, err := client.GenerateDevotional(context.Background(), testProfile(), func(models.DevotionalDay, string) { calls++ })

	require.NoError(t, err)
	assert.Equal(t, "Second Try", res.Title)
	assert.Equal(t, 7, calls)
	ai.AssertExpectations(t)
}

func TestGenerateDevotional_ExhaustsRetries(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	cfg := testConfig()
	cfg.GenerationBatchSize = 7
	client := generation.NewClient(ai, store, cfg, zap.NewNop())

	ai.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", generation.UsageInfo{}, errors.New("fetch failed: network error")).Times(3)

	_, err := client.GenerateDevotional(context.Background(), testProfile(), nil)

	require.Error(t, err)
	assert.Equal(t, generation.FailureTransient, generation.Classify(err))
	ai.AssertExpectations(t)
}

func TestGenerateDevotional_ContentPolicyNotRetried(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	client := generation.NewClient(ai, store, testConfig(), zap.NewNop())

	ai.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", generation.UsageInfo{}, errors.New("rejected by content_filter")).Once()

	_, err := client.GenerateDevotional(context.Background(), testProfile(), nil)

	require.Error(t, err)
	assert.Equal(t, generation.FailureContentPolicy, generation.Classify(err))
	// Ровно один вызов: фильтр контента не ретраим
	ai.AssertNumberOfCalls(t, "GenerateText", 1)
}

func TestContinueGeneratingDays_RequestsOnlyMissing(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	client := generation.NewClient(ai, store, testConfig(), zap.NewNop())

	d := &models.Devotional{
		UserID:    "user-1",
		Title:     "Peace for Today",
		TotalDays: 7,
		Days: []models.DevotionalDay{
			{DayNumber: 1, Body: "b"}, {DayNumber: 2, Body: "b"},
			{DayNumber: 3, Body: "b"}, {DayNumber: 4, Body: "b"},
		},
	}

	// Модель вернула запрошенные 5-7 и лишний день 4 — он должен быть отброшен
	ai.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(batchResponse("", 4, 7), generation.UsageInfo{}, nil).Once()

	var got []int
	all, err := client.ContinueGeneratingDays(context.Background(), d, nil, 7, func(day models.DevotionalDay, _ string) {
		got = append(got, day.DayNumber)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, got)
	// Резолвимся полным списком: существующие + новые
	assert.Len(t, all, 7)
	ai.AssertExpectations(t)
}

func TestContinueGeneratingDays_NothingMissing(t *testing.T) {
	ai := mocks.NewMockAIClient(t)
	store := database.NewMemoryDevotionalStore()
	client := generation.NewClient(ai, store, testConfig(), zap.NewNop())

	d := &models.Devotional{
		TotalDays: 2,
		Days:      []models.DevotionalDay{{DayNumber: 1, Body: "b"}, {DayNumber: 2, Body: "b"}},
	}

	all, err := client.ContinueGeneratingDays(context.Background(), d, nil, 2, nil)

	require.NoError(t, err)
	assert.Len(t, all, 2)
	ai.AssertNumberOfCalls(t, "GenerateText", 0)
}

func TestExtractScripturesFromDevotional(t *testing.T) {
	d := &models.Devotional{
		Translation: "ESV",
		Days: []models.DevotionalDay{
			{DayNumber: 1, ScriptureReference: "Psalm 23:1"},
			{DayNumber: 2, ScriptureReference: "John 14:27"},
			{DayNumber: 3, ScriptureReference: "Psalm 23:1"}, // дубликат
			{DayNumber: 4, ScriptureReference: ""},
		},
	}

	refs := generation.ExtractScripturesFromDevotional(d)

	require.Len(t, refs, 2)
	assert.Equal(t, "Psalm 23:1", refs[0].Reference)
	assert.Equal(t, "John 14:27", refs[1].Reference)
	assert.Equal(t, "ESV", refs[0].Translation)

	assert.Nil(t, generation.ExtractScripturesFromDevotional(nil))
}

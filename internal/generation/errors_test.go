package generation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"network error", errors.New("fetch failed: network error"), FailureTransient},
		{"timeout", errors.New("request timed out after 120s"), FailureTransient},
		{"bad gateway", errors.New("upstream returned 502 Bad Gateway"), FailureTransient},
		{"service unavailable", errors.New("503 service unavailable"), FailureTransient},
		{"unable to connect", errors.New("unable to connect to host"), FailureTransient},
		{"rate limited", errors.New("429 too many requests"), FailureTransient},
		{"content filter", errors.New("rejected by content_filter"), FailureContentPolicy},
		{"moderation", errors.New("flagged by moderation endpoint"), FailureContentPolicy},
		{"content policy", errors.New("violates content policy"), FailureContentPolicy},
		{"unknown", errors.New("something strange happened"), FailureUnknown},
		{"wrapped transient", fmt.Errorf("generation failed: %w", errors.New("connection refused")), FailureTransient},
		{"nil", nil, FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureKind_AutoRetryable(t *testing.T) {
	assert.True(t, FailureTransient.AutoRetryable())
	assert.False(t, FailureContentPolicy.AutoRetryable())
	assert.False(t, FailureUnknown.AutoRetryable())
}

func TestFailureKind_UserMessage(t *testing.T) {
	// Сырые сообщения об ошибках пользователю не показываем
	for _, k := range []FailureKind{FailureTransient, FailureContentPolicy, FailureUnknown} {
		msg := k.UserMessage()
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, "502")
		assert.NotContains(t, msg, "fetch")
	}
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// MockPushPublisher is a mock type for the interfaces.PushEventPublisher type
type MockPushPublisher struct {
	mock.Mock
}

// Publish provides a mock function with given fields: ctx, event
func (_m *MockPushPublisher) Publish(ctx context.Context, event models.PushEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// NewMockPushPublisher creates a new instance of MockPushPublisher.
func NewMockPushPublisher(t interface {
	mock.TestingT
	Helper()
}) *MockPushPublisher {
	m := &MockPushPublisher{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ interfaces.PushEventPublisher = (*MockPushPublisher)(nil)

package mocks

import (
	"context"

	"chaos-stories/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// Mock PlaythroughPublisher
type PlaythroughPublisher struct {
	mock.Mock
}

func (m *PlaythroughPublisher) PublishPlaythroughFinished(ctx context.Context, payload messaging.PlaythroughFinishedPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

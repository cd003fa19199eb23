package mocks

import (
	"context"
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock SessionService
type SessionService struct {
	mock.Mock
}

func (m *SessionService) Story() *domain.Story {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Story)
}

func (m *SessionService) Create(ctx context.Context) (service.View, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) Get(ctx context.Context, id uuid.UUID) (service.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *SessionService) EnterCharacterSelect(ctx context.Context, id uuid.UUID) (service.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) SelectCharacter(ctx context.Context, id uuid.UUID, characterID domain.CharacterID) (service.View, error) {
	args := m.Called(ctx, id, characterID)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) StartGame(ctx context.Context, id uuid.UUID) (service.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) Choose(ctx context.Context, id uuid.UUID, choiceID string) (service.View, error) {
	args := m.Called(ctx, id, choiceID)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) CompleteOutcome(ctx context.Context, id uuid.UUID) (service.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) Restart(ctx context.Context, id uuid.UUID) (service.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.View), args.Error(1)
}

func (m *SessionService) Count() int {
	return m.Called().Int(0)
}

func (m *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	m.Called(ctx, interval)
}

func (m *SessionService) Close() {
	m.Called()
}

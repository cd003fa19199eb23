package transition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/transition"
	"chaos-stories/pkg/eventloop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, path string) error {
	return m.Called(path).Error(0)
}

type EngineSuite struct {
	suite.Suite

	sched  *eventloop.Virtual
	loader *mockLoader
	cache  *transition.AssetCache
	engine *transition.Engine
	events []transition.Event
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.sched = eventloop.NewVirtual()
	s.loader = new(mockLoader)
	s.cache = transition.NewAssetCache()
	s.events = nil
	pre := transition.NewPreloader(zap.NewNop(), s.sched, s.loader, s.cache, time.Second, nil)
	s.engine = transition.NewEngine(zap.NewNop(), s.sched, pre, transition.DefaultOptions(),
		transition.ListenerFunc(func(e transition.Event) { s.events = append(s.events, e) }), nil)
}

func (s *EngineSuite) kinds() []transition.EventKind {
	out := make([]transition.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *EngineSuite) TestInlineAssetCompletesWithinFades() {
	next := &domain.Scene{ID: "scene-2", BackgroundImage: "linear-gradient(#000, #fff)"}

	s.Require().NoError(s.engine.TransitionTo(next, "scene-1"))
	s.Equal(transition.StateFadingOut, s.engine.State())
	s.Zero(s.engine.Opacity())
	s.Equal([]transition.EventKind{transition.EventStart}, s.kinds())

	s.sched.Advance(150 * time.Millisecond)
	s.Equal(transition.StateFadingIn, s.engine.State())
	s.Equal(1.0, s.engine.Opacity())
	s.Equal([]transition.EventKind{transition.EventStart, transition.EventSceneReady}, s.kinds())

	s.sched.Advance(150 * time.Millisecond)
	s.Equal(transition.StateIdle, s.engine.State())
	s.Equal([]transition.EventKind{transition.EventStart, transition.EventSceneReady, transition.EventComplete}, s.kinds())
	s.Equal("scene-1", s.events[2].FromSceneID)
	s.Equal(next, s.events[2].Scene)

	s.loader.AssertNotCalled(s.T(), "Load", mock.Anything)
	s.Zero(s.sched.PendingTimers())
}

func (s *EngineSuite) TestLoadedAssetIsCachedAcrossCycles() {
	s.loader.On("Load", "/images/scenes/bank.jpg").Return(nil).Once()
	next := &domain.Scene{ID: "bank", BackgroundImage: "/images/scenes/bank.jpg"}

	s.Require().NoError(s.engine.TransitionTo(next, "street"))
	s.sched.Advance(150 * time.Millisecond)
	s.Equal(transition.StateLoading, s.engine.State())

	s.sched.RunBackground()
	s.Equal(transition.StateFadingIn, s.engine.State())
	s.sched.Advance(150 * time.Millisecond)
	s.True(s.cache.Has("/images/scenes/bank.jpg"))

	// Второй цикл берёт ресурс из кэша без загрузки
	s.Require().NoError(s.engine.TransitionTo(next, "bank"))
	s.sched.Advance(150 * time.Millisecond)
	s.Equal(transition.StateFadingIn, s.engine.State())
	s.Zero(s.sched.PendingBackground())

	s.loader.AssertExpectations(s.T())
}

func (s *EngineSuite) TestSlowAssetHitsCeiling() {
	s.loader.On("Load", "/slow.jpg").Return(nil).Once()
	next := &domain.Scene{ID: "slow", BackgroundImage: "/slow.jpg"}

	s.Require().NoError(s.engine.TransitionTo(next, ""))
	s.sched.Advance(150 * time.Millisecond)
	s.sched.Advance(199 * time.Millisecond)
	s.Equal(transition.StateLoading, s.engine.State())

	s.sched.Advance(time.Millisecond)
	s.Equal(transition.StateFadingIn, s.engine.State())
	s.sched.Advance(150 * time.Millisecond)
	s.Equal(transition.StateIdle, s.engine.State())

	// Поздняя загрузка не порождает повторных событий
	s.sched.RunBackground()
	s.Equal([]transition.EventKind{transition.EventStart, transition.EventSceneReady, transition.EventComplete}, s.kinds())
	s.True(s.cache.Has("/slow.jpg"))
}

func (s *EngineSuite) TestFailedLoadIsTreatedAsReady() {
	s.loader.On("Load", "/broken.jpg").Return(errors.New("404")).Once()
	next := &domain.Scene{ID: "broken", BackgroundImage: "/broken.jpg"}

	s.Require().NoError(s.engine.TransitionTo(next, ""))
	s.sched.Advance(150 * time.Millisecond)
	s.sched.RunBackground()
	s.Equal(transition.StateFadingIn, s.engine.State())
	s.True(s.cache.Has("/broken.jpg"))
}

func (s *EngineSuite) TestEndingShortCircuits() {
	ending := &domain.Scene{ID: "scene-11a", IsEnding: true, BackgroundImage: "/end.jpg"}

	s.Require().NoError(s.engine.TransitionTo(ending, "scene-10"))
	s.Equal(transition.StateIdle, s.engine.State())
	s.Equal(1.0, s.engine.Opacity())
	s.Equal([]transition.EventKind{transition.EventEndingReached}, s.kinds())
	s.Zero(s.sched.PendingTimers())
	s.loader.AssertNotCalled(s.T(), "Load", mock.Anything)
}

func (s *EngineSuite) TestSecondTransitionIsRejected() {
	next := &domain.Scene{ID: "a", BackgroundImage: "data:image/png;base64,AAAA"}
	other := &domain.Scene{ID: "b", BackgroundImage: "data:image/png;base64,BBBB"}

	s.Require().NoError(s.engine.TransitionTo(next, ""))
	s.ErrorIs(s.engine.TransitionTo(other, ""), transition.ErrTransitionInProgress)
	s.ErrorIs(s.engine.TransitionTo(&domain.Scene{ID: "end", IsEnding: true}, ""), transition.ErrTransitionInProgress)

	s.sched.Advance(300 * time.Millisecond)
	s.Require().Len(s.events, 3)
	for _, e := range s.events {
		s.Equal("a", e.Scene.ID)
	}
}

func (s *EngineSuite) TestCancelInvalidatesCycle() {
	s.loader.On("Load", "/x.jpg").Return(nil).Once()
	next := &domain.Scene{ID: "x", BackgroundImage: "/x.jpg"}

	s.Require().NoError(s.engine.TransitionTo(next, ""))
	s.sched.Advance(150 * time.Millisecond)
	s.engine.Cancel()
	s.Equal(transition.StateIdle, s.engine.State())
	s.Equal(1.0, s.engine.Opacity())

	s.sched.RunBackground()
	s.sched.Advance(time.Second)
	s.Equal([]transition.EventKind{transition.EventStart}, s.kinds())

	// После отмены движок принимает новый переход
	s.Require().NoError(s.engine.TransitionTo(next, ""))
	s.sched.Advance(300 * time.Millisecond)
	s.Equal(transition.StateIdle, s.engine.State())
}

func TestPreloaderDeduplicatesInFlight(t *testing.T) {
	sched := eventloop.NewVirtual()
	loader := new(mockLoader)
	loader.On("Load", "/a.jpg").Return(nil).Once()
	cache := transition.NewAssetCache()
	pre := transition.NewPreloader(zap.NewNop(), sched, loader, cache, 0, nil)

	calls := 0
	pre.Preload("/a.jpg", func() { calls++ })
	pre.Preload("/a.jpg", func() { calls++ })
	pre.Preload("/a.jpg", nil)
	assert.True(t, pre.Pending("/a.jpg"))
	assert.Equal(t, 1, sched.PendingBackground())

	sched.RunBackground()
	assert.Equal(t, 2, calls)
	assert.False(t, pre.Pending("/a.jpg"))
	assert.Equal(t, 1, cache.Len())

	pre.Preload("/a.jpg", func() { calls++ })
	assert.Equal(t, 3, calls)
	loader.AssertExpectations(t)
}

func TestAssetCacheAdd(t *testing.T) {
	c := transition.NewAssetCache()
	require.True(t, c.Add("k"))
	require.False(t, c.Add("k"))
	assert.True(t, c.Has("k"))
	assert.False(t, c.Has("other"))
}

func TestIsInline(t *testing.T) {
	assert.True(t, transition.IsInline("linear-gradient(to bottom, #000, #333)"))
	assert.True(t, transition.IsInline("data:image/png;base64,AAAA"))
	assert.False(t, transition.IsInline("/images/scenes/tavern.jpg"))
}

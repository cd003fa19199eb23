package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/messaging"
	"chaos-stories/internal/transition"
	"chaos-stories/pkg/eventloop"
	"chaos-stories/pkg/random"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const publishTimeout = 15 * time.Second

// SessionService hosts in-memory playthroughs and runs every command on the playthrough's own loop.
type SessionService interface {
	// Story returns the story every session plays.
	Story() *domain.Story

	// Create starts a new session in the menu phase.
	Create(ctx context.Context) (View, error)
	// Get returns the current view of a session.
	Get(ctx context.Context, id uuid.UUID) (View, error)
	// Delete closes a session and drops it.
	Delete(ctx context.Context, id uuid.UUID) error

	EnterCharacterSelect(ctx context.Context, id uuid.UUID) (View, error)
	SelectCharacter(ctx context.Context, id uuid.UUID, characterID domain.CharacterID) (View, error)
	StartGame(ctx context.Context, id uuid.UUID) (View, error)
	Choose(ctx context.Context, id uuid.UUID, choiceID string) (View, error)
	CompleteOutcome(ctx context.Context, id uuid.UUID) (View, error)
	Restart(ctx context.Context, id uuid.UUID) (View, error)

	// Count returns the number of live sessions.
	Count() int
	// RunJanitor expires idle sessions until ctx is done.
	RunJanitor(ctx context.Context, interval time.Duration)
	// Close closes every session and waits for background asset loads and pending publishes.
	Close()
}

// ServiceMetrics extends the per-playthrough metrics with the session gauge.
type ServiceMetrics interface {
	Metrics
	SessionsActive(n int)
}

type nopServiceMetrics struct{ nopMetrics }

func (nopServiceMetrics) SessionsActive(int) {}

// SessionConfig bounds the number and lifetime of sessions.
type SessionConfig struct {
	IdleTTL     time.Duration
	MaxSessions int
	Loop        LoopOptions
	// Seed делает разброс хаоса воспроизводимым: n-я сессия получает Seed+n. Ноль означает crypto/rand.
	Seed uint64
}

type session struct {
	loop     *eventloop.Loop
	game     *GameLoop
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type sessionServiceImpl struct {
	logger    *zap.Logger
	story     *domain.Story
	loader    transition.AssetLoader
	cache     *transition.AssetCache
	metrics   ServiceMetrics
	notifier  Notifier
	publisher messaging.PlaythroughPublisher
	cfg       SessionConfig
	tracer    trace.Tracer
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	publishing sync.WaitGroup
	created    atomic.Uint64
}

// NewSessionService creates the session host. notifier and publisher may be nil.
func NewSessionService(
	story *domain.Story,
	loader transition.AssetLoader,
	cache *transition.AssetCache,
	metrics ServiceMetrics,
	notifier Notifier,
	publisher messaging.PlaythroughPublisher,
	cfg SessionConfig,
	logger *zap.Logger,
) SessionService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if metrics == nil {
		metrics = nopServiceMetrics{}
	}
	return &sessionServiceImpl{
		logger:    logger.Named("session_service"),
		story:     story,
		loader:    loader,
		cache:     cache,
		metrics:   metrics,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		tracer:    otel.Tracer("chaos-stories/internal/service"),
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*session),
	}
}

func (s *sessionServiceImpl) Story() *domain.Story {
	return s.story
}

func (s *sessionServiceImpl) Create(ctx context.Context) (View, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	rng, err := s.newRand()
	if err != nil {
		s.logger.Error("Failed to seed session random source", zap.Error(err))
		return View{}, err
	}

	s.mu.Lock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		s.logger.Warn("Session limit reached", zap.Int("max_sessions", s.cfg.MaxSessions))
		span.SetStatus(codes.Error, ErrTooManySessions.Error())
		return View{}, ErrTooManySessions
	}
	id := uuid.New()
	loop := eventloop.New(s.logger.With(zap.String("session_id", id.String())))
	sess := &session{loop: loop, lastSeen: s.now()}
	sess.game = NewGameLoop(id, GameLoopDeps{
		Logger:    s.logger,
		Story:     s.story,
		Scheduler: loop,
		Loader:    s.loader,
		Cache:     s.cache,
		RNG:       rng,
		Metrics:   s.metrics,
		Notifier:  s.notifier,
		OnFinish:  s.publishFinished,
		Options:   s.cfg.Loop,
		Now:       s.now,
	})
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SessionsActive(count)
	span.SetAttributes(attribute.String("session.id", id.String()))
	s.logger.Info("Session created", zap.String("session_id", id.String()))
	return s.run(ctx, sess, nil)
}

func (s *sessionServiceImpl) newRand() (*rand.Rand, error) {
	n := s.created.Add(1)
	if s.cfg.Seed != 0 {
		return random.Seeded(s.cfg.Seed + n - 1), nil
	}
	return random.New()
}

func (s *sessionServiceImpl) Get(ctx context.Context, id uuid.UUID) (View, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	return s.run(ctx, sess, nil)
}

func (s *sessionServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.closeSession(ctx, sess)
	s.metrics.SessionsActive(count)
	s.logger.Info("Session deleted", zap.String("session_id", id.String()))
	return nil
}

func (s *sessionServiceImpl) EnterCharacterSelect(ctx context.Context, id uuid.UUID) (View, error) {
	return s.command(ctx, id, "session.enter_character_select", func(g *GameLoop) error {
		return g.EnterCharacterSelect()
	})
}

func (s *sessionServiceImpl) SelectCharacter(ctx context.Context, id uuid.UUID, characterID domain.CharacterID) (View, error) {
	return s.command(ctx, id, "session.select_character", func(g *GameLoop) error {
		return g.SelectCharacter(characterID)
	})
}

func (s *sessionServiceImpl) StartGame(ctx context.Context, id uuid.UUID) (View, error) {
	return s.command(ctx, id, "session.start_game", func(g *GameLoop) error {
		return g.StartGame()
	})
}

func (s *sessionServiceImpl) Choose(ctx context.Context, id uuid.UUID, choiceID string) (View, error) {
	return s.command(ctx, id, "session.choose", func(g *GameLoop) error {
		return g.Choose(choiceID)
	})
}

func (s *sessionServiceImpl) CompleteOutcome(ctx context.Context, id uuid.UUID) (View, error) {
	return s.command(ctx, id, "session.complete_outcome", func(g *GameLoop) error {
		return g.CompleteOutcome()
	})
}

func (s *sessionServiceImpl) Restart(ctx context.Context, id uuid.UUID) (View, error) {
	return s.command(ctx, id, "session.restart", func(g *GameLoop) error {
		return g.Restart()
	})
}

func (s *sessionServiceImpl) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *sessionServiceImpl) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireIdle(ctx)
		}
	}
}

func (s *sessionServiceImpl) expireIdle(ctx context.Context) {
	if s.cfg.IdleTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		s.closeSession(ctx, sess)
	}
	if len(expired) > 0 {
		s.metrics.SessionsActive(count)
		s.logger.Info("Expired idle sessions", zap.Int("expired", len(expired)), zap.Int("remaining", count))
	}
}

func (s *sessionServiceImpl) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.closeSession(context.Background(), sess)
	}
	// Загрузки ассетов ограничены ASSET_TIMEOUT, их продолжения уже отброшены закрытым циклом
	for _, sess := range sessions {
		sess.loop.Wait()
	}
	s.metrics.SessionsActive(0)
	s.publishing.Wait()
}

func (s *sessionServiceImpl) command(ctx context.Context, id uuid.UUID, name string, fn func(*GameLoop) error) (View, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session.id", id.String())))
	defer span.End()

	sess, err := s.lookup(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return View{}, err
	}
	view, err := s.run(ctx, sess, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("Command rejected", zap.String("command", name), zap.String("session_id", id.String()), zap.Error(err))
	}
	return view, err
}

// run executes fn on the session loop and returns the resulting view. The view is returned even when
// fn fails so callers can show the unchanged state.
func (s *sessionServiceImpl) run(ctx context.Context, sess *session, fn func(*GameLoop) error) (View, error) {
	sess.touch(s.now())
	var (
		view   View
		cmdErr error
	)
	err := sess.loop.Do(ctx, func() error {
		if fn != nil {
			cmdErr = fn(sess.game)
		}
		view = sess.game.View()
		return nil
	})
	if errors.Is(err, eventloop.ErrClosed) {
		return View{}, ErrSessionClosed
	}
	if err != nil {
		return View{}, err
	}
	return view, cmdErr
}

func (s *sessionServiceImpl) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *sessionServiceImpl) closeSession(ctx context.Context, sess *session) {
	if err := sess.loop.Do(ctx, func() error {
		sess.game.Close()
		return nil
	}); err != nil && !errors.Is(err, eventloop.ErrClosed) {
		s.logger.Warn("Failed to close game loop cleanly", zap.String("session_id", sess.game.ID().String()), zap.Error(err))
	}
	sess.loop.Close()
}

// publishFinished runs on the session loop; publishing happens off-loop.
func (s *sessionServiceImpl) publishFinished(sum Summary) {
	payload := messaging.PlaythroughFinishedPayload{
		EventID:          uuid.New(),
		SessionID:        sum.SessionID,
		StoryID:          sum.StoryID,
		CharacterID:      string(sum.CharacterID),
		Outcome:          string(sum.Outcome),
		EndingID:         sum.EndingID,
		SceneID:          sum.SceneID,
		ChaosLevel:       sum.ChaosLevel,
		Choices:          sum.Choices,
		CharacterChoices: sum.CharacterChoices,
		DurationMs:       sum.Duration.Milliseconds(),
		FinishedAt:       sum.FinishedAt,
	}

	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		ctx, span := s.tracer.Start(ctx, "playthrough.publish_finished",
			trace.WithAttributes(attribute.String("session.id", sum.SessionID.String()), attribute.String("outcome", string(sum.Outcome))))
		defer span.End()

		if err := s.publisher.PublishPlaythroughFinished(ctx, payload); err != nil {
			span.RecordError(err)
			s.logger.Error("Failed to publish playthrough finished",
				zap.String("session_id", sum.SessionID.String()),
				zap.Error(err),
			)
		}
	}()
}

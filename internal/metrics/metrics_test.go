package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chaos-stories/internal/game"
	"chaos-stories/internal/transition"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.PhaseChanged(game.PhaseMenu, game.PhaseCharacterSelect)
	m.PhaseChanged(game.PhaseMenu, game.PhaseCharacterSelect)
	m.TransitionRejected(game.PhaseMenu, game.PhaseEnding)
	m.ChoiceMade(true)
	m.ChoiceMade(false)
	m.ChoiceMade(false)
	m.PlaythroughFinished("ending", "ending-reveal")
	m.AssetLoaded(transition.LoadOK, 20*time.Millisecond)
	m.AssetLoaded(transition.LoadFailed, time.Second)
	m.AssetLoaded(transition.LoadCached, 0)
	m.PreloadCeilingHit()
	m.SessionsActive(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.phaseTransitions.WithLabelValues("menu", "character_select")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedTransitions.WithLabelValues("menu", "ending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.choices.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.choices.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.playthroughs.WithLabelValues("ending", "ending-reveal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.preloadFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.preloads.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ceilingHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1, testutil.CollectAndCount(m.preloadDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SessionsActive(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chaos_stories_sessions_active 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

package domain_test

import (
	"testing"

	"chaos-stories/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand всегда возвращает заранее заданное значение (обрезанное по n).
type fixedRand int

func (f fixedRand) IntN(n int) int {
	return min(int(f), n-1)
}

func intPtr(v int) *int { return &v }

func TestBracketFor(t *testing.T) {
	cases := map[int]string{
		-5:  "chaos-0-25",
		0:   "chaos-0-25",
		25:  "chaos-0-25",
		26:  "chaos-26-50",
		50:  "chaos-26-50",
		51:  "chaos-51-75",
		75:  "chaos-51-75",
		76:  "chaos-76-100",
		100: "chaos-76-100",
		140: "chaos-76-100",
	}
	for chaos, label := range cases {
		assert.Equal(t, label, domain.BracketFor(chaos).Label, "chaos %d", chaos)
	}
}

func TestApplyChaos(t *testing.T) {
	assert.Equal(t, 25, domain.ApplyChaos(0, 25))
	assert.Equal(t, 100, domain.ApplyChaos(90, 25))
	assert.Equal(t, 0, domain.ApplyChaos(10, -40))
	assert.Equal(t, 100, domain.ApplyChaos(100, 0))
}

func TestRealizeChaosDelta(t *testing.T) {
	t.Run("fixed delta without variance", func(t *testing.T) {
		c := &domain.Choice{ChaosChange: 25}
		assert.Equal(t, 25, domain.RealizeChaosDelta(c, fixedRand(7)))
	})

	t.Run("variance is inclusive", func(t *testing.T) {
		c := &domain.Choice{ChaosChange: 10, ChaosVariance: &domain.ChaosRange{Min: -5, Max: 5}}
		assert.Equal(t, 5, domain.RealizeChaosDelta(c, fixedRand(0)))
		assert.Equal(t, 15, domain.RealizeChaosDelta(c, fixedRand(100)))
	})

	t.Run("reversed range is normalized", func(t *testing.T) {
		c := &domain.Choice{ChaosVariance: &domain.ChaosRange{Min: 5, Max: -5}}
		assert.Equal(t, -5, domain.RealizeChaosDelta(c, fixedRand(0)))
		assert.Equal(t, 5, domain.RealizeChaosDelta(c, fixedRand(100)))
	})

	t.Run("zero width range", func(t *testing.T) {
		c := &domain.Choice{ChaosChange: 1, ChaosVariance: &domain.ChaosRange{Min: 3, Max: 3}}
		assert.Equal(t, 4, domain.RealizeChaosDelta(c, fixedRand(0)))
	})

	t.Run("result always clamps into range", func(t *testing.T) {
		c := &domain.Choice{ChaosChange: 90, ChaosVariance: &domain.ChaosRange{Min: 0, Max: 50}}
		for _, start := range []int{0, 40, 100} {
			for r := 0; r <= 50; r += 10 {
				got := domain.ApplyChaos(start, domain.RealizeChaosDelta(c, fixedRand(r)))
				assert.GreaterOrEqual(t, got, domain.MinChaos)
				assert.LessOrEqual(t, got, domain.MaxChaos)
			}
		}
	})
}

func TestResolveText(t *testing.T) {
	scene := &domain.Scene{
		ID:   "scene-5",
		Text: "base",
		ArrivalVariants: map[string]domain.Variant{
			"scene-4":      {Text: "from four"},
			"chaos-76-100": {Text: "on fire"},
		},
	}

	assert.Equal(t, "from four", domain.ResolveText(scene, "scene-4", 90), "previous scene wins over bracket")
	assert.Equal(t, "on fire", domain.ResolveText(scene, "scene-3", 90))
	assert.Equal(t, "base", domain.ResolveText(scene, "scene-3", 10))
	assert.Equal(t, "base", domain.ResolveText(scene, "", 0))
	assert.Empty(t, domain.ResolveText(nil, "", 0))
}

func TestVisibleChoices(t *testing.T) {
	scene := &domain.Scene{Choices: []domain.Choice{
		{ID: "a"},
		{ID: "r", CharacterOnly: domain.CharacterRupert},
		{ID: "b"},
		{ID: "m", CharacterOnly: domain.CharacterMilo},
	}}

	ids := func(cs []domain.Choice) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "r", "b"}, ids(domain.VisibleChoices(scene, domain.CharacterRupert)))
	assert.Equal(t, []string{"a", "b", "m"}, ids(domain.VisibleChoices(scene, domain.CharacterMilo)))
	assert.Equal(t, []string{"a", "b"}, ids(domain.VisibleChoices(scene, "")))
}

func TestChoiceDeath(t *testing.T) {
	c := &domain.Choice{DeathCondition: &domain.DeathCondition{MinChaos: 50}, DeathText: "boom"}

	text, dead := c.Death(50)
	assert.True(t, dead)
	assert.Equal(t, "boom", text)

	_, dead = c.Death(49)
	assert.False(t, dead)

	c.DeathText = ""
	text, dead = c.Death(80)
	assert.True(t, dead)
	assert.Equal(t, domain.DefaultDeathText, text)

	_, dead = (&domain.Choice{}).Death(100)
	assert.False(t, dead)
}

func TestIsSelfLoop(t *testing.T) {
	story := &domain.Story{Scenes: []domain.Scene{{ID: "one"}, {ID: "two"}}}

	assert.True(t, story.IsSelfLoop(&domain.Choice{NextSceneID: "one"}, "one"))
	assert.True(t, story.IsSelfLoop(&domain.Choice{NextSceneID: "nowhere"}, "one"))
	assert.False(t, story.IsSelfLoop(&domain.Choice{NextSceneID: "two"}, "one"))
}

func TestSelectEnding(t *testing.T) {
	story := &domain.Story{
		Scenes: []domain.Scene{
			{ID: "end-a", Text: "ENDING: A", IsEnding: true},
			{ID: "end-b", Text: "ENDING: B", IsEnding: true},
		},
		Endings: []domain.Ending{
			{ID: "low", Title: "Low", Conditions: domain.EndingConditions{ChaosMin: intPtr(0), ChaosMax: intPtr(50)}},
			{ID: "milo-high", Title: "Milo", Conditions: domain.EndingConditions{ChaosMin: intPtr(51), ChaosMax: intPtr(100), CharacterOnly: domain.CharacterMilo, RequiresCharacterChoices: 2}},
			{ID: "high", Title: "High", Conditions: domain.EndingConditions{ChaosMin: intPtr(51), ChaosMax: intPtr(100)}},
			{ID: "bound", Title: "Bound", SceneID: "end-b"},
		},
	}
	endA, _ := story.Scene("end-a")
	endB, _ := story.Scene("end-b")

	t.Run("scene bound ending wins", func(t *testing.T) {
		e, ok := story.SelectEnding(endB, 10, domain.CharacterRupert, 0)
		require.True(t, ok)
		assert.Equal(t, "bound", e.ID)
	})

	t.Run("bracket match", func(t *testing.T) {
		e, ok := story.SelectEnding(endA, 30, domain.CharacterRupert, 0)
		require.True(t, ok)
		assert.Equal(t, "low", e.ID)
	})

	t.Run("character conditions", func(t *testing.T) {
		e, _ := story.SelectEnding(endA, 80, domain.CharacterMilo, 2)
		assert.Equal(t, "milo-high", e.ID)

		e, _ = story.SelectEnding(endA, 80, domain.CharacterMilo, 1)
		assert.Equal(t, "high", e.ID)
	})

	t.Run("fallback synthesized from scene", func(t *testing.T) {
		bare := &domain.Story{Scenes: story.Scenes}
		e, ok := bare.SelectEnding(endA, 40, domain.CharacterRupert, 0)
		assert.False(t, ok)
		assert.Equal(t, "end-a", e.ID)
		assert.Equal(t, "ENDING: A", e.Title)
	})
}

func TestStoryNeighbours(t *testing.T) {
	story := &domain.Story{Scenes: []domain.Scene{
		{ID: "s1", Choices: []domain.Choice{
			{ID: "a", NextSceneID: "s2"},
			{ID: "b", NextSceneID: "s2"},
			{ID: "c", NextSceneID: "s1"},
			{ID: "d", NextSceneID: "missing"},
			{ID: "e", NextSceneID: "s3"},
		}},
		{ID: "s2"},
		{ID: "s3"},
	}}
	s1, ok := story.Scene("s1")
	require.True(t, ok)

	var ids []string
	for _, n := range story.Neighbours(s1) {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"s2", "s3"}, ids)
}

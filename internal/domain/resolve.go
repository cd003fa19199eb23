package domain

import (
	"fmt"
)

const (
	MinChaos = 0
	MaxChaos = 100

	// MaxVisibleChoices is an authoring limit; exceeding it is a warning, never a failure.
	MaxVisibleChoices = 4

	DefaultDeathText = "You died."
)

// Bracket is one of the four inclusive chaos ranges used for arrival variants and endings.
type Bracket struct {
	Label string
	Min   int
	Max   int
}

// Brackets cover [MinChaos, MaxChaos] without overlap.
var Brackets = []Bracket{
	{Label: "chaos-0-25", Min: 0, Max: 25},
	{Label: "chaos-26-50", Min: 26, Max: 50},
	{Label: "chaos-51-75", Min: 51, Max: 75},
	{Label: "chaos-76-100", Min: 76, Max: 100},
}

// Contains reports whether chaos falls into the bracket.
func (b Bracket) Contains(chaos int) bool {
	return chaos >= b.Min && chaos <= b.Max
}

// BracketFor returns the bracket containing chaos; out-of-range values are clamped first.
func BracketFor(chaos int) Bracket {
	chaos = ClampChaos(chaos)
	for _, b := range Brackets {
		if b.Contains(chaos) {
			return b
		}
	}
	return Brackets[len(Brackets)-1]
}

// IsBracketLabel reports whether key names a chaos bracket.
func IsBracketLabel(key string) bool {
	for _, b := range Brackets {
		if b.Label == key {
			return true
		}
	}
	return false
}

// ClampChaos clamps v into [MinChaos, MaxChaos].
func ClampChaos(v int) int {
	return max(MinChaos, min(MaxChaos, v))
}

// ApplyChaos adds delta to current and clamps the result.
func ApplyChaos(current, delta int) int {
	return ClampChaos(current + delta)
}

// IntN is the random source used for chaos variance; *rand.Rand from math/rand/v2 satisfies it.
type IntN interface {
	IntN(n int) int
}

// RealizeChaosDelta returns the fixed delta of the choice plus, when the choice declares a variance,
// a uniformly distributed integer from the inclusive range. Reversed ranges are normalized.
func RealizeChaosDelta(c *Choice, rng IntN) int {
	delta := c.ChaosChange
	if c.ChaosVariance == nil {
		return delta
	}
	lo, hi := c.ChaosVariance.Min, c.ChaosVariance.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	return delta + lo + rng.IntN(hi-lo+1)
}

// ResolveText selects the scene text to display: a variant keyed by the previous scene id wins over a
// variant keyed by the current chaos bracket, which wins over the base text.
func ResolveText(scene *Scene, previousSceneID string, chaos int) string {
	if scene == nil {
		return ""
	}
	if previousSceneID != "" {
		if v, ok := scene.ArrivalVariants[previousSceneID]; ok {
			return v.Text
		}
	}
	if v, ok := scene.ArrivalVariants[BracketFor(chaos).Label]; ok {
		return v.Text
	}
	return scene.Text
}

// VisibleChoices keeps ungated choices and choices gated to character, preserving order.
func VisibleChoices(scene *Scene, character CharacterID) []Choice {
	if scene == nil {
		return nil
	}
	out := make([]Choice, 0, len(scene.Choices))
	for _, c := range scene.Choices {
		if c.CharacterOnly == "" || c.CharacterOnly == character {
			out = append(out, c)
		}
	}
	return out
}

// Death evaluates the choice's death condition against the pre-choice chaos level.
func (c *Choice) Death(chaos int) (string, bool) {
	if c.DeathCondition == nil || chaos < c.DeathCondition.MinChaos {
		return "", false
	}
	if c.DeathText == "" {
		return DefaultDeathText, true
	}
	return c.DeathText, true
}

// IsSelfLoop reports whether resolving the choice keeps the player on the current scene:
// the target is the current scene or does not exist.
func (s *Story) IsSelfLoop(c *Choice, currentSceneID string) bool {
	if c.NextSceneID == currentSceneID {
		return true
	}
	_, ok := s.Scene(c.NextSceneID)
	return !ok
}

// Matches reports whether the conditions hold for the final chaos level, character and number of
// character-specific choices taken.
func (ec EndingConditions) Matches(chaos int, character CharacterID, characterChoices int) bool {
	if ec.ChaosMin != nil && chaos < *ec.ChaosMin {
		return false
	}
	if ec.ChaosMax != nil && chaos > *ec.ChaosMax {
		return false
	}
	if ec.CharacterOnly != "" && ec.CharacterOnly != character {
		return false
	}
	return characterChoices >= ec.RequiresCharacterChoices
}

// hasBracket reports whether the ending is selected by chaos range rather than bound to a scene.
func (e *Ending) hasBracket() bool {
	return e.Conditions.ChaosMin != nil || e.Conditions.ChaosMax != nil
}

// SelectEnding resolves the ending for a terminal scene. An ending bound to the scene wins; otherwise
// the first bracketed ending whose conditions hold. The second result is false when neither exists and
// the returned ending was synthesized from the scene itself.
func (s *Story) SelectEnding(scene *Scene, chaos int, character CharacterID, characterChoices int) (*Ending, bool) {
	for i := range s.Endings {
		if e := &s.Endings[i]; e.SceneID != "" && e.SceneID == scene.ID {
			return e, true
		}
	}
	for i := range s.Endings {
		e := &s.Endings[i]
		if e.SceneID != "" || !e.hasBracket() {
			continue
		}
		if e.Conditions.Matches(chaos, character, characterChoices) {
			return e, true
		}
	}
	return &Ending{
		ID:          scene.ID,
		Title:       scene.Text,
		Description: fmt.Sprintf("Reached %s at chaos %d", scene.ID, chaos),
	}, false
}

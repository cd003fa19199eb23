package domain

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// maxSentences is the authoring guideline for scene and outcome text length.
const maxSentences = 4

var (
	ErrInvalidStory = errors.New("invalid story")

	sentenceEnd = regexp.MustCompile(`[.!?]+(\s|$)`)
	structCheck = validator.New(validator.WithRequiredStructEnabled())
)

// Warning is an authoring problem that does not prevent the story from being played.
type Warning struct {
	SceneID  string `json:"scene_id,omitempty"`
	ChoiceID string `json:"choice_id,omitempty"`
	Message  string `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.ChoiceID != "":
		return fmt.Sprintf("%s/%s: %s", w.SceneID, w.ChoiceID, w.Message)
	case w.SceneID != "":
		return fmt.Sprintf("%s: %s", w.SceneID, w.Message)
	default:
		return w.Message
	}
}

// Validate checks struct tags and graph integrity. All violations are collected and joined into one
// error wrapping ErrInvalidStory; warnings are returned regardless of the error.
func (s *Story) Validate() ([]Warning, error) {
	var errs []error
	if err := structCheck.Struct(s); err != nil {
		errs = append(errs, err)
	}

	characters := make(map[CharacterID]struct{}, len(s.Characters))
	for _, c := range s.Characters {
		if _, dup := characters[c.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate character id %q", c.ID))
		}
		characters[c.ID] = struct{}{}
	}

	scenes := make(map[string]*Scene, len(s.Scenes))
	for i := range s.Scenes {
		sc := &s.Scenes[i]
		if _, dup := scenes[sc.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate scene id %q", sc.ID))
		}
		scenes[sc.ID] = sc
	}
	if _, ok := scenes[s.StartSceneID]; !ok {
		errs = append(errs, fmt.Errorf("start scene %q: %w", s.StartSceneID, ErrSceneNotFound))
	}

	var warnings []Warning
	choiceIDs := make(map[string]string)
	for i := range s.Scenes {
		sc := &s.Scenes[i]
		w, e := s.checkScene(sc, scenes, characters, choiceIDs)
		warnings = append(warnings, w...)
		errs = append(errs, e...)
	}

	for _, e := range s.Endings {
		if e.SceneID == "" {
			continue
		}
		sc, ok := scenes[e.SceneID]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("ending %q: scene %q: %w", e.ID, e.SceneID, ErrSceneNotFound))
		case !sc.IsEnding:
			errs = append(errs, fmt.Errorf("ending %q: scene %q is not terminal", e.ID, e.SceneID))
		}
	}
	warnings = append(warnings, overlappingEndings(s.Endings)...)

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%w: %w", ErrInvalidStory, errors.Join(errs...))
	}
	return warnings, nil
}

func (s *Story) checkScene(sc *Scene, scenes map[string]*Scene, characters map[CharacterID]struct{}, choiceIDs map[string]string) ([]Warning, []error) {
	var (
		warnings []Warning
		errs     []error
	)
	if sc.IsEnding {
		if len(sc.Choices) > 0 {
			errs = append(errs, fmt.Errorf("scene %q: terminal scene has choices", sc.ID))
		}
		if len(sc.ArrivalVariants) == 0 {
			errs = append(errs, fmt.Errorf("scene %q: terminal scene has no arrival variants", sc.ID))
		}
	} else if !s.playableByAnyone(sc) {
		errs = append(errs, fmt.Errorf("scene %q: no choice visible to any character", sc.ID))
	}

	if countSentences(sc.Text) > maxSentences {
		warnings = append(warnings, Warning{SceneID: sc.ID, Message: "scene text exceeds 4 sentences"})
	}
	for key := range sc.ArrivalVariants {
		if _, ok := scenes[key]; !ok && !IsBracketLabel(key) {
			warnings = append(warnings, Warning{SceneID: sc.ID, Message: fmt.Sprintf("unknown arrival variant key %q", key)})
		}
	}
	for _, c := range s.Characters {
		if n := len(VisibleChoices(sc, c.ID)); n > MaxVisibleChoices {
			warnings = append(warnings, Warning{SceneID: sc.ID, Message: fmt.Sprintf("%d choices visible to %s", n, c.ID)})
		}
	}

	for _, c := range sc.Choices {
		if owner, dup := choiceIDs[c.ID]; dup {
			errs = append(errs, fmt.Errorf("scene %q: choice id %q already used in scene %q", sc.ID, c.ID, owner))
		}
		choiceIDs[c.ID] = sc.ID
		if c.CharacterOnly != "" {
			if _, ok := characters[c.CharacterOnly]; !ok {
				errs = append(errs, fmt.Errorf("scene %q: choice %q: %w: %q", sc.ID, c.ID, ErrCharacterNotFound, c.CharacterOnly))
			}
		}
		if _, ok := scenes[c.NextSceneID]; !ok {
			warnings = append(warnings, Warning{SceneID: sc.ID, ChoiceID: c.ID, Message: fmt.Sprintf("target %q does not exist, choice loops back", c.NextSceneID)})
		}
		if countSentences(c.OutcomeText) > maxSentences {
			warnings = append(warnings, Warning{SceneID: sc.ID, ChoiceID: c.ID, Message: "outcome text exceeds 4 sentences"})
		}
	}
	return warnings, errs
}

// playableByAnyone reports whether at least one character sees at least one choice.
func (s *Story) playableByAnyone(sc *Scene) bool {
	for _, c := range s.Characters {
		if len(VisibleChoices(sc, c.ID)) > 0 {
			return true
		}
	}
	return false
}

func overlappingEndings(endings []Ending) []Warning {
	var warnings []Warning
	for i := range endings {
		a := &endings[i]
		if a.SceneID != "" || !a.hasBracket() {
			continue
		}
		for j := i + 1; j < len(endings); j++ {
			b := &endings[j]
			if b.SceneID != "" || !b.hasBracket() {
				continue
			}
			if a.Conditions.CharacterOnly != b.Conditions.CharacterOnly {
				continue
			}
			aLo, aHi := a.Conditions.bounds()
			bLo, bHi := b.Conditions.bounds()
			if aLo <= bHi && bLo <= aHi {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("endings %q and %q overlap", a.ID, b.ID)})
			}
		}
	}
	return warnings
}

func (ec EndingConditions) bounds() (int, int) {
	lo, hi := MinChaos, MaxChaos
	if ec.ChaosMin != nil {
		lo = *ec.ChaosMin
	}
	if ec.ChaosMax != nil {
		hi = *ec.ChaosMax
	}
	return lo, hi
}

func countSentences(text string) int {
	return len(sentenceEnd.FindAllStringIndex(text, -1))
}

package domain

// CharacterID identifies a playable character. Stories may define ids beyond the bundled cast.
type CharacterID string

const (
	CharacterRupert CharacterID = "rupert"
	CharacterMilo   CharacterID = "milo"
)

// ChoiceType separates cosmetic choices from choices that advance the plot.
type ChoiceType string

const (
	ChoiceFlavor ChoiceType = "flavor" // usually loops back to the same scene
	ChoiceBranch ChoiceType = "branch" // moves to another scene
)

// Ability describes the character's signature ability for display.
type Ability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Traits holds the probabilistic-effect chances used by character-gated choices.
type Traits struct {
	OutburstChance      float64 `json:"outburst_chance,omitempty" validate:"min=0,max=1"`
	SpellBackfireChance float64 `json:"spell_backfire_chance,omitempty" validate:"min=0,max=1"`
}

// Character is immutable reference data; one is selected per playthrough.
type Character struct {
	ID          CharacterID `json:"id" validate:"required"`
	Name        string      `json:"name" validate:"required"`
	Class       string      `json:"class"`
	Description string      `json:"description"`
	Portrait    string      `json:"portrait"`
	Ability     Ability     `json:"ability"`
	Traits      Traits      `json:"traits"`
}

// ChaosRange is an inclusive [Min, Max] variance added on top of a choice's fixed delta.
type ChaosRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DeathCondition kills the player when the pre-choice chaos level reaches MinChaos.
type DeathCondition struct {
	MinChaos int `json:"min_chaos" validate:"min=0,max=100"`
}

// Choice is an edge candidate of the story graph.
type Choice struct {
	ID             string          `json:"id" validate:"required"`
	Text           string          `json:"text" validate:"required"`
	Type           ChoiceType      `json:"choice_type" validate:"required,oneof=flavor branch"`
	NextSceneID    string          `json:"next_scene_id" validate:"required"`
	ChaosChange    int             `json:"chaos_change"`
	ChaosVariance  *ChaosRange     `json:"chaos_variance,omitempty"`
	OutcomeText    string          `json:"outcome_text"`
	CharacterOnly  CharacterID     `json:"character_only,omitempty"`
	DeathCondition *DeathCondition `json:"death_condition,omitempty"`
	DeathText      string          `json:"death_text,omitempty"`
	IsMagic        bool            `json:"is_magic,omitempty"`
}

// IsCharacterSpecific reports whether the choice is gated to a single character.
func (c *Choice) IsCharacterSpecific() bool {
	return c.CharacterOnly != ""
}

// Variant is an alternate scene text selected on arrival.
type Variant struct {
	Text string `json:"text" validate:"required"`
}

// Scene is a node of the story graph.
type Scene struct {
	ID              string                 `json:"id" validate:"required"`
	Text            string                 `json:"text"`
	BackgroundImage string                 `json:"background_image"`
	Choices         []Choice               `json:"choices" validate:"dive"`
	IsEnding        bool                   `json:"is_ending,omitempty"`
	ArrivalVariants map[string]Variant     `json:"arrival_variants,omitempty" validate:"dive"`
	CharacterFlavor map[CharacterID]string `json:"character_flavor,omitempty"`
}

// FlavorText returns the per-character flavor line for the scene, if any.
func (s *Scene) FlavorText(character CharacterID) string {
	if s == nil || s.CharacterFlavor == nil {
		return ""
	}
	return s.CharacterFlavor[character]
}

// EndingConditions restricts which playthroughs an ending applies to.
// Nil bounds are open.
type EndingConditions struct {
	ChaosMin                 *int        `json:"chaos_min,omitempty" validate:"omitempty,min=0,max=100"`
	ChaosMax                 *int        `json:"chaos_max,omitempty" validate:"omitempty,min=0,max=100"`
	CharacterOnly            CharacterID `json:"character_only,omitempty"`
	RequiresCharacterChoices int         `json:"requires_character_choices,omitempty" validate:"min=0"`
}

// Ending is a named outcome attached to the game state once a terminal scene is reached.
// When SceneID is set the ending is unconditional for that terminal scene.
type Ending struct {
	ID          string           `json:"id" validate:"required"`
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description"`
	Image       string           `json:"image,omitempty"`
	SceneID     string           `json:"scene_id,omitempty"`
	Conditions  EndingConditions `json:"conditions"`
}

// Story is the complete story graph consumed by the engine.
type Story struct {
	ID           string      `json:"id" validate:"required"`
	Title        string      `json:"title" validate:"required"`
	Description  string      `json:"description"`
	StartSceneID string      `json:"start_scene_id" validate:"required"`
	Characters   []Character `json:"characters" validate:"required,min=1,dive"`
	Scenes       []Scene     `json:"scenes" validate:"required,min=1,dive"`
	Endings      []Ending    `json:"endings" validate:"dive"`

	scenes     map[string]*Scene
	characters map[CharacterID]*Character
}

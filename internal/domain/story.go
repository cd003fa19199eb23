package domain

import (
	"errors"
)

var (
	ErrSceneNotFound     = errors.New("scene not found")
	ErrCharacterNotFound = errors.New("character not found")
)

// Index builds the id lookups used by Scene and Character.
// It must be called after the story is decoded and before it is shared.
func (s *Story) Index() {
	s.scenes = make(map[string]*Scene, len(s.Scenes))
	for i := range s.Scenes {
		s.scenes[s.Scenes[i].ID] = &s.Scenes[i]
	}
	s.characters = make(map[CharacterID]*Character, len(s.Characters))
	for i := range s.Characters {
		s.characters[s.Characters[i].ID] = &s.Characters[i]
	}
}

// Scene looks a scene up by id.
func (s *Story) Scene(id string) (*Scene, bool) {
	if s.scenes == nil {
		s.Index()
	}
	scene, ok := s.scenes[id]
	return scene, ok
}

// Character looks a character up by id.
func (s *Story) Character(id CharacterID) (*Character, bool) {
	if s.characters == nil {
		s.Index()
	}
	c, ok := s.characters[id]
	return c, ok
}

// StartScene returns the designated start scene.
func (s *Story) StartScene() (*Scene, error) {
	scene, ok := s.Scene(s.StartSceneID)
	if !ok {
		return nil, ErrSceneNotFound
	}
	return scene, nil
}

// Neighbours returns the distinct scenes reachable from scene in one choice, excluding scene itself.
func (s *Story) Neighbours(scene *Scene) []*Scene {
	if scene == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(scene.Choices))
	var out []*Scene
	for _, c := range scene.Choices {
		if c.NextSceneID == scene.ID {
			continue
		}
		if _, dup := seen[c.NextSceneID]; dup {
			continue
		}
		seen[c.NextSceneID] = struct{}{}
		if next, ok := s.Scene(c.NextSceneID); ok {
			out = append(out, next)
		}
	}
	return out
}

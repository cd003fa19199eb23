package http

import (
	"chaos-stories/internal/domain"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

type selectCharacterRequest struct {
	CharacterID string `json:"character_id" validate:"required,max=64"`
}

type chooseRequest struct {
	ChoiceID string `json:"choice_id" validate:"required,max=128"`
}

// storyResponse is the public description of the loaded story, without the scene graph.
type storyResponse struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	StartSceneID string             `json:"start_scene_id"`
	Characters   []domain.Character `json:"characters"`
	SceneCount   int                `json:"scene_count"`
	EndingCount  int                `json:"ending_count"`
}

func newStoryResponse(s *domain.Story) storyResponse {
	return storyResponse{
		ID:           s.ID,
		Title:        s.Title,
		Description:  s.Description,
		StartSceneID: s.StartSceneID,
		Characters:   s.Characters,
		SceneCount:   len(s.Scenes),
		EndingCount:  len(s.Endings),
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

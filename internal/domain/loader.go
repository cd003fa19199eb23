package domain

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load decodes a story from r, rejecting unknown fields, validates it and builds the id index.
func Load(r io.Reader) (*Story, []Warning, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var story Story
	if err := dec.Decode(&story); err != nil {
		return nil, nil, fmt.Errorf("decode story: %w", err)
	}
	warnings, err := story.Validate()
	if err != nil {
		return nil, warnings, err
	}
	story.Index()
	return &story, warnings, nil
}

// LoadFile reads the story at path.
func LoadFile(path string) (*Story, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open story %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

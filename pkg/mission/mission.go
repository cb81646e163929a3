// Package mission defines the learning mission catalog: scripted
// conversational scenarios with objectives used to structure a session.
// Mission data is immutable once loaded.
package mission

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// Difficulty is the mission difficulty level.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Valid reports whether d is a known difficulty level.
func (d Difficulty) Valid() bool {
	switch d {
	case Beginner, Intermediate, Advanced:
		return true
	default:
		return false
	}
}

// Mission is one scripted learning scenario. Immutable.
type Mission struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Icon             string     `json:"icon"`
	Difficulty       Difficulty `json:"difficulty"`
	Persona          string     `json:"persona"`
	Situation        string     `json:"situation"`
	Objectives       []string   `json:"objectives"`
	EstimatedMinutes int        `json:"estimated_minutes"`
}

// Validate checks the mission record for the invariants the session
// manager relies on.
func (m Mission) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("mission id must not be empty")
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("mission %s: title must not be empty", m.ID)
	}
	if !m.Difficulty.Valid() {
		return fmt.Errorf("mission %s: unknown difficulty %q", m.ID, m.Difficulty)
	}
	if len(m.Objectives) == 0 {
		return fmt.Errorf("mission %s: at least one objective is required", m.ID)
	}
	if m.EstimatedMinutes <= 0 {
		return fmt.Errorf("mission %s: estimated_minutes must be positive", m.ID)
	}
	return nil
}

// Language is a supported learning language.
type Language struct {
	Name string `json:"name"`
	Flag string `json:"flag,omitempty"`
}

// LearningMode describes a tutoring mode (teacher or immersive).
type LearningMode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is a read-only set of missions, languages, and modes.
type Catalog struct {
	missions  []Mission
	languages []Language
	modes     []LearningMode
	byID      map[string]Mission
}

type catalogFile struct {
	Missions  []Mission      `json:"missions"`
	Languages []Language     `json:"languages"`
	Modes     []LearningMode `json:"modes"`
}

//go:embed missions.json
var defaultCatalogJSON []byte

// Load parses catalog JSON and validates every mission.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mission catalog: %w", err)
	}
	c := &Catalog{
		missions:  file.Missions,
		languages: file.Languages,
		modes:     file.Modes,
		byID:      make(map[string]Mission, len(file.Missions)),
	}
	for _, m := range file.Missions {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[m.ID]; exists {
			return nil, fmt.Errorf("duplicate mission id %q", m.ID)
		}
		c.byID[m.ID] = m
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Load(defaultCatalogJSON)
	if err != nil {
		// The embedded catalog is validated by tests; a parse failure here
		// is a build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded mission catalog is invalid: %v", err))
	}
	return c
}

// Missions returns all missions in catalog order.
func (c *Catalog) Missions() []Mission {
	out := make([]Mission, len(c.missions))
	copy(out, c.missions)
	return out
}

// ByID looks up one mission.
func (c *Catalog) ByID(id string) (Mission, bool) {
	m, ok := c.byID[strings.TrimSpace(id)]
	return m, ok
}

// Languages returns the supported learning languages.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)
	return out
}

// Modes returns the available learning modes.
func (c *Catalog) Modes() []LearningMode {
	out := make([]LearningMode, len(c.modes))
	copy(out, c.modes)
	return out
}

// Len returns the number of missions.
func (c *Catalog) Len() int {
	return len(c.missions)
}

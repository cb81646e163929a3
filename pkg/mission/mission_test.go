package mission

import (
	"testing"
)

func TestDefault_CatalogParsesAndValidates(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("embedded catalog has no missions")
	}
	if len(c.Languages()) == 0 {
		t.Fatal("embedded catalog has no languages")
	}
	if len(c.Modes()) != 2 {
		t.Fatalf("modes=%d, want teacher and immersive", len(c.Modes()))
	}
}

func TestByID(t *testing.T) {
	c := Default()
	m, ok := c.ByID("cafe-order")
	if !ok {
		t.Fatal("cafe-order mission not found")
	}
	if m.Difficulty != Beginner {
		t.Fatalf("difficulty=%q", m.Difficulty)
	}
	if len(m.Objectives) == 0 {
		t.Fatal("mission has no objectives")
	}

	if _, ok := c.ByID("no-such-mission"); ok {
		t.Fatal("unexpected hit for unknown id")
	}
}

func TestLoad_RejectsInvalidMissions(t *testing.T) {
	cases := map[string]string{
		"unknown difficulty": `{"missions":[{"id":"m1","title":"T","difficulty":"expert","objectives":["a"],"estimated_minutes":5}]}`,
		"no objectives":      `{"missions":[{"id":"m1","title":"T","difficulty":"beginner","objectives":[],"estimated_minutes":5}]}`,
		"zero minutes":       `{"missions":[{"id":"m1","title":"T","difficulty":"beginner","objectives":["a"],"estimated_minutes":0}]}`,
		"empty id":           `{"missions":[{"id":" ","title":"T","difficulty":"beginner","objectives":["a"],"estimated_minutes":5}]}`,
		"duplicate id":       `{"missions":[{"id":"m1","title":"T","difficulty":"beginner","objectives":["a"],"estimated_minutes":5},{"id":"m1","title":"T2","difficulty":"beginner","objectives":["a"],"estimated_minutes":5}]}`,
	}
	for name, raw := range cases {
		if _, err := Load([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMissionsReturnsCopy(t *testing.T) {
	c := Default()
	first := c.Missions()
	first[0].Title = "mutated"
	if c.Missions()[0].Title == "mutated" {
		t.Fatal("Missions() must not expose internal slice")
	}
}

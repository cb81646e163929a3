package tutor

import (
	"strings"
	"testing"

	"github.com/talktrek/talktrek/pkg/mission"
)

var testMission = &mission.Mission{
	ID:         "cafe-order",
	Title:      "Order at a Cafe",
	Difficulty: mission.Beginner,
	Persona:    "a friendly barista",
	Situation:  "a busy cafe in the city center",
	Objectives: []string{"Greet the barista", "Order a coffee"},
}

func TestBuildSystemInstructionWithoutMission(t *testing.T) {
	got := BuildSystemInstruction(nil, "Spanish", "English", "teacher", "")
	if got != defaultInstruction {
		t.Fatalf("instruction = %q", got)
	}

	custom := "You are a pirate tutor."
	if got := BuildSystemInstruction(nil, "Spanish", "English", "teacher", custom); got != custom {
		t.Fatalf("custom instruction not used: %q", got)
	}
}

func TestBuildSystemInstructionTeacherMode(t *testing.T) {
	got := BuildSystemInstruction(testMission, "Spanish", "English", "teacher", "")

	for _, want := range []string{
		"a friendly barista",
		"helping someone learn Spanish",
		"native speaker of English",
		`"Order at a Cafe"`,
		"a busy cafe in the city center",
		"- Greet the barista",
		"- Order a coffee",
		"provide 3 learning tips",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("teacher instruction missing %q:\n%s", want, got)
		}
	}
}

func TestBuildSystemInstructionImmersiveMode(t *testing.T) {
	got := BuildSystemInstruction(testMission, "Spanish", "English", "immersive", "")

	for _, want := range []string{
		"a native speaker of Spanish",
		"ONLY speak in Spanish",
		"Do not use English at all",
		"Do not act as an AI assistant",
		"congratulate them enthusiastically in Spanish",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("immersive instruction missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "learning tips") {
		t.Fatal("immersive mode must not include teacher-mode coaching")
	}
}

func TestBuildSystemInstructionDefaultPersona(t *testing.T) {
	m := *testMission
	m.Persona = ""
	got := BuildSystemInstruction(&m, "French", "English", "teacher", "")
	if !strings.Contains(got, "a native speaker") {
		t.Fatalf("missing default persona:\n%s", got)
	}
}

package tutor

import (
	"fmt"
	"strings"

	"github.com/talktrek/talktrek/pkg/mission"
)

const defaultInstruction = "You are a helpful language learning assistant."

// BuildSystemInstruction produces the roleplay prompt for a session.
// Without a mission the custom instruction (or a generic assistant
// prompt) is used. With a mission, teacher mode coaches in the
// learner's native language while immersive mode stays strictly in the
// target language.
func BuildSystemInstruction(m *mission.Mission, language, fromLanguage, mode, custom string) string {
	if m == nil {
		if strings.TrimSpace(custom) != "" {
			return custom
		}
		return defaultInstruction
	}

	persona := m.Persona
	if persona == "" {
		persona = "a native speaker"
	}

	var objectives strings.Builder
	for _, obj := range m.Objectives {
		fmt.Fprintf(&objectives, "- %s\n", obj)
	}

	if mode == "teacher" {
		return fmt.Sprintf(`ROLEPLAY INSTRUCTION:
You are acting as **%s**, helping someone learn %s.
The user is a language learner (native speaker of %s) trying to: "%s" (%s).

TEACHING GUIDELINES:
1. Be encouraging and patient. This is a learning experience.
2. When the user makes mistakes, gently correct them and explain the grammar/vocabulary in %s.
3. Provide translations when asked or when the user seems stuck.
4. If the user uses %s, respond in %s first with guidance, then demonstrate in %s.
5. Use simple, clear %s appropriate for a learner.

MISSION OBJECTIVES:
%s
When objectives are complete, congratulate the user and provide 3 learning tips.`,
			persona, language, fromLanguage, m.Title, m.Situation,
			fromLanguage,
			fromLanguage, fromLanguage, language,
			language,
			objectives.String())
	}

	return fmt.Sprintf(`ROLEPLAY INSTRUCTION:
You are acting as **%s**, a native speaker of %s.
The user is a language learner trying to: "%s" (%s).
Your goal is to play your role naturally. Do not act as an AI assistant. Act as the person.

INTERACTION GUIDELINES:
1. ONLY speak in %s. Do not use %s at all.
2. If the user speaks %s, look confused and ask them (in %s) to speak %s.
3. Be helpful but strict about language practice.
4. Speak naturally as a native speaker would in this situation.
5. Keep responses conversational and realistic.

MISSION OBJECTIVES for the user to achieve:
%s
When objectives are complete, congratulate them enthusiastically in %s.`,
		persona, language, m.Title, m.Situation,
		language, fromLanguage,
		fromLanguage, language, language,
		objectives.String(),
		language)
}

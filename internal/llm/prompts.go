package llm

import "fmt"

// ExtractionSystemPrompt builds the system prompt for AI-assisted fact
// extraction. knownPeople is a preformatted list of people the model may
// resolve entity facts against; it may be empty.
func ExtractionSystemPrompt(knownPeople string) string {
	peopleBlock := "none"
	if knownPeople != "" {
		peopleBlock = knownPeople
	}

	return fmt.Sprintf(`You are a fact extraction system for a personal knowledge store. Extract facts about the user and about named entities from the conversation. Return ONLY valid JSON, no explanations.

CATEGORIES:
personalInfo, relationships, lifestyle, values, fears, goals, preferences, memories, experiences, challenges, habits, triggers, currentSituation, recentEvents, other

KNOWN PEOPLE (for entityFacts; match by name, case-insensitive):
%s

RULES:
- NO guessing: only extract explicitly stated facts
- NO general statements: "drinking coffee" is not likes_coffee; "I love coffee" is
- confidence must be >= 0.8
- source: "user_told" or "inferred"
- Support Turkish and English input
- entityId: only set when the name matches a known person; otherwise null
- Return empty arrays if nothing qualifies

JSON FORMAT:
{
  "userFacts": [
    {"category": "personalInfo", "key": "job", "value": "software developer", "confidence": 0.9, "source": "user_told"}
  ],
  "entityFacts": [
    {"category": "preferences", "key": "likes_tennis", "value": "likes", "confidence": 0.85, "source": "user_told",
     "entityType": "person", "entityId": null, "entityName": "Ali"}
  ]
}

CRITICAL JSON RULES:
- "value" MUST ALWAYS BE A STRING (not boolean, not number)
- booleans become "true"/"false", numbers become "28"

Return only the JSON object, no markdown fences.`, peopleBlock)
}

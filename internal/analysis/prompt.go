package analysis

import (
	"fmt"
	"strings"
)

// Temperature for extraction calls. Near-zero keeps the output format
// stable across runs; anything higher makes the JSON contract flaky on
// small models.
const ExtractionTemperature = 0.01

// BatchSystemPrompt frames every batched extraction call.
const BatchSystemPrompt = `You are a Story analysis engine. Output one complete and valid JSON object as requested in the user prompt, from the given Story excerpt.`

const batchPromptTemplate = `Extract all the characters, dialogs spoken by them, their traits and inferred voice profile from the given Story excerpt.
RULES:
1. ONLY include Characters who have quoted dialogs.
2. DO NOT classify locations, objects, creatures or entities that don't speak as Characters.
3. Do not repeat Characters in the output.
4. Attribute dialogs by Character name and pronouns referring them. Each dialog belongs to only one Character.
5. Identify Character traits explicitly mentioned in the story by the Narrator.
6. Based on the traits, infer a voice profile.

Keys for output:
D:Array of exact quoted dialogs spoken by current Character
T:Array of Character traits (personalities, adjectives)
V:Voice profile as a tuple of "Gender,Age,Accent,Pitch,Speed".
Possible values:
Gender (inferred from pronouns): male|female
Age (explicitly mentioned or inferred): child|young|young-adult|middle-aged|elderly
Accent (inferred from the dialogs): neutral|british|american|asian
Pitch (of voice) within the range: 0.5-1.5
Speed (speed of speaking) within the range: 0.5-2.0

OUTPUT FORMAT:
{
  "CharacterName1": {"D": ["this character's first dialog", "their next dialog"], "T": ["trait", "another trait"], "V": "Gender,Age,Accent,Pitch,Speed"},
  "CharacterName2": {"D": ["this character's first dialog"], "T": ["trait"], "V": "Gender,Age,Accent,Pitch,Speed"}
}

Story Excerpt:
%s

JSON:`

// BuildBatchPrompt returns the user prompt for one batch's passage text.
func BuildBatchPrompt(passage string) string {
	return fmt.Sprintf(batchPromptTemplate, passage)
}

// TraitSystemPrompt frames ad hoc single-character trait extraction.
const TraitSystemPrompt = `You are a trait extraction engine. Extract ONLY the explicitly stated traits for the named character from the provided story text.`

const traitPromptTemplate = `Extract the traits of the character %q from the story text.
RULES:
1. Extract ONLY traits directly stated or shown in the text.
2. Include physical descriptions, behavioral traits, speech patterns, and emotional states if explicitly mentioned.
3. Do NOT infer personality from actions.
4. Do NOT include traits of other characters.
5. If no traits are found, return an empty list.

OUTPUT FORMAT (valid JSON only):
{"character": %q, "traits": ["trait1", "trait2"]}

TEXT:
%s

JSON:`

// BuildTraitPrompt returns the user prompt for extracting one character's
// traits from a passage.
func BuildTraitPrompt(characterName, passage string) string {
	return fmt.Sprintf(traitPromptTemplate, characterName, characterName, passage)
}

// TruncateForPrompt trims a passage to the input character budget implied
// by maxInputTokens, cutting at a rune boundary.
func TruncateForPrompt(passage string, maxInputTokens int) string {
	budget := maxInputTokens * CharsPerToken
	if budget <= 0 {
		return passage
	}
	runes := []rune(passage)
	if len(runes) <= budget {
		return passage
	}
	return strings.TrimSpace(string(runes[:budget]))
}

package analysis

import (
	"encoding/json/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/normalize"
)

// ExtractedCharacter is one character's contribution from a single batch,
// as parsed from the model's output.
type ExtractedCharacter struct {
	Name    string
	Dialogs []string
	Traits  []string
	Voice   *domain.VoiceProfile
}

// BatchExtraction is the parsed output of one batch's inference call.
type BatchExtraction struct {
	Characters []ExtractedCharacter
}

// thinkTags matches reasoning-model chatter that wraps or precedes the JSON.
var thinkTags = regexp.MustCompile(`(?s)<think>.*?(</think>|$)`)

// ParseBatchOutput parses the model's batch response. The contract is a
// top-level JSON object keyed by character name:
//
//	{"Elizabeth": {"D": ["dialog", ...], "T": ["trait", ...], "V": "female,young,british,1.1,1.0"}}
//
// Key variants are tolerated (d/dialog/dialogs/dialogue, t/trait/traits,
// v/voice/voice_profile), scalar values are promoted to single-element
// lists, and the voice tuple parses positionally with per-field fallback
// to defaults. Surrounding chatter is stripped by scanning for the first
// balanced JSON object.
//
// Returns a batch_failed error when no parseable object exists; the caller
// logs and skips the batch rather than aborting the chapter.
func ParseBatchOutput(raw string) (BatchExtraction, error) {
	cleaned := thinkTags.ReplaceAllString(raw, "")

	objText, ok := firstJSONObject(cleaned)
	if !ok {
		return BatchExtraction{}, errors.BatchFailed("no JSON object in model output")
	}

	var byName map[string]map[string]any
	if err := json.Unmarshal([]byte(objText), &byName); err != nil {
		return BatchExtraction{}, errors.Wrap(err, errors.CodeBatchFailed, "malformed batch output")
	}

	// Sort names so accumulation order is deterministic; JSON object order
	// is lost in the map.
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var out BatchExtraction
	for _, name := range names {
		display := normalize.DisplayName(name)
		if display == "" {
			continue
		}

		ec := ExtractedCharacter{Name: display}
		for key, value := range byName[name] {
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "d", "dialog", "dialogs", "dialogue", "dialogues":
				ec.Dialogs = append(ec.Dialogs, toStrings(value)...)
			case "t", "trait", "traits":
				ec.Traits = append(ec.Traits, toStrings(value)...)
			case "v", "voice", "voice_profile":
				if s, ok := value.(string); ok {
					ec.Voice = ParseVoice(s)
				}
			}
		}
		out.Characters = append(out.Characters, ec)
	}

	return out, nil
}

// firstJSONObject returns the first balanced top-level JSON object in text.
// Tracks string and escape state so braces inside dialog lines don't
// truncate the object.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// toStrings coerces a parsed JSON value into a string list. Lists keep
// their order; a bare string becomes a single-element list; everything
// else is dropped.
func toStrings(value any) []string {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// ParseTraitOutput parses the ad hoc trait extraction response:
//
//	{"character": "Elizabeth", "traits": ["witty", "headstrong"]}
//
// The echoed character field is informational and not validated; models
// frequently return a normalized form of the requested name. Chatter around
// the object is stripped the same way batch output is.
func ParseTraitOutput(raw string) ([]string, error) {
	cleaned := thinkTags.ReplaceAllString(raw, "")

	objText, ok := firstJSONObject(cleaned)
	if !ok {
		return nil, errors.BatchFailed("no JSON object in trait output")
	}

	var payload struct {
		Character string   `json:"character"`
		Traits    []string `json:"traits"`
	}
	if err := json.Unmarshal([]byte(objText), &payload); err != nil {
		return nil, errors.Wrap(err, errors.CodeBatchFailed, "malformed trait output")
	}

	out := make([]string, 0, len(payload.Traits))
	for _, trait := range payload.Traits {
		trait = strings.TrimSpace(trait)
		if trait != "" {
			out = append(out, trait)
		}
	}
	return out, nil
}

// ParseVoice parses the "Gender,Age,Accent,Pitch,Speed" tuple. Fields parse
// positionally; missing or unparseable fields fall back to their defaults,
// and numeric fields are clamped to their valid ranges. Returns nil for an
// empty string.
func ParseVoice(s string) *domain.VoiceProfile {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	v := domain.DefaultVoiceProfile()
	parts := strings.Split(s, ",")
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		switch i {
		case 0:
			v.Gender = p
		case 1:
			v.Age = p
		case 2:
			v.Accent = p
		case 3:
			if f, err := strconv.ParseFloat(p, 64); err == nil {
				v.Pitch = f
			}
		case 4:
			if f, err := strconv.ParseFloat(p, 64); err == nil {
				v.Speed = f
			}
		}
	}

	v.Clamp()
	return &v
}

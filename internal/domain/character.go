package domain

// NarratorName is the reserved character that receives all narration
// (non-quoted text). Every completed chapter analysis contains it.
const NarratorName = "Narrator"

// Character is the book-level merged record for one speaking character,
// accumulated across chapters as their analyses complete. Keyed by
// CanonicalName within a book.
type Character struct {
	Syncable
	BookID string `json:"book_id"`
	// Name is the display form, as first extracted.
	Name string `json:"name"`
	// CanonicalName is the case-folded identity key. "ELIZABETH" and
	// "Elizabeth" merge into one record.
	CanonicalName string        `json:"canonical_name"`
	Traits        []string      `json:"traits,omitempty"`
	Dialogs       []DialogLine  `json:"dialogs,omitempty"`
	Voice         *VoiceProfile `json:"voice,omitempty"`
	// ChapterIDs lists the chapters this character appears in.
	ChapterIDs []string `json:"chapter_ids,omitempty"`
}

// DialogLine is one spoken line attributed to a character, tagged with the
// chapter it came from. Order within a chapter is narrative order.
type DialogLine struct {
	ChapterIndex int    `json:"chapter_index"`
	Text         string `json:"text"`
}

// HasTrait reports whether the trait is already recorded.
func (c *Character) HasTrait(trait string) bool {
	for _, t := range c.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// AddTrait appends a trait if not already present. Returns true if added.
func (c *Character) AddTrait(trait string) bool {
	if trait == "" || c.HasTrait(trait) {
		return false
	}
	c.Traits = append(c.Traits, trait)
	return true
}

// HasChapter reports whether the chapter is already recorded.
func (c *Character) HasChapter(chapterID string) bool {
	for _, id := range c.ChapterIDs {
		if id == chapterID {
			return true
		}
	}
	return false
}

// VoiceProfile describes how a character should sound when read aloud.
// Fields equal to their declared defaults are treated as "not yet
// extracted" by the merge strategies.
type VoiceProfile struct {
	Gender string  `json:"gender"`
	Age    string  `json:"age"`
	Accent string  `json:"accent"`
	Pitch  float64 `json:"pitch"`
	Speed  float64 `json:"speed"`
}

// Declared voice defaults. A field holding its default is considered unset.
const (
	DefaultVoiceGender = "male"
	DefaultVoiceAge    = "young-adult"
	DefaultVoiceAccent = "neutral"
	DefaultVoicePitch  = 1.0
	DefaultVoiceSpeed  = 1.0
)

// Voice field domains accepted from extraction output. Values outside these
// fall back to the default.
var (
	ValidVoiceGenders = map[string]bool{
		"male":   true,
		"female": true,
	}
	ValidVoiceAges = map[string]bool{
		"child":       true,
		"young":       true,
		"young-adult": true,
		"middle-aged": true,
		"elderly":     true,
	}
	ValidVoiceAccents = map[string]bool{
		"neutral":  true,
		"british":  true,
		"american": true,
		"asian":    true,
	}
)

// Pitch and speed bounds.
const (
	MinVoicePitch = 0.5
	MaxVoicePitch = 1.5
	MinVoiceSpeed = 0.5
	MaxVoiceSpeed = 2.0
)

// DefaultVoiceProfile returns a profile with every field at its default.
func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{
		Gender: DefaultVoiceGender,
		Age:    DefaultVoiceAge,
		Accent: DefaultVoiceAccent,
		Pitch:  DefaultVoicePitch,
		Speed:  DefaultVoiceSpeed,
	}
}

// IsDefault reports whether every field holds its default value.
func (v VoiceProfile) IsDefault() bool {
	return v == DefaultVoiceProfile()
}

// Clamp forces pitch and speed into their valid ranges and replaces
// out-of-domain gender/age/accent values with defaults.
func (v *VoiceProfile) Clamp() {
	if !ValidVoiceGenders[v.Gender] {
		v.Gender = DefaultVoiceGender
	}
	if !ValidVoiceAges[v.Age] {
		v.Age = DefaultVoiceAge
	}
	if !ValidVoiceAccents[v.Accent] {
		v.Accent = DefaultVoiceAccent
	}
	if v.Pitch < MinVoicePitch {
		v.Pitch = MinVoicePitch
	}
	if v.Pitch > MaxVoicePitch {
		v.Pitch = MaxVoicePitch
	}
	if v.Speed < MinVoiceSpeed {
		v.Speed = MinVoiceSpeed
	}
	if v.Speed > MaxVoiceSpeed {
		v.Speed = MaxVoiceSpeed
	}
}

package analysis

import "github.com/voxbookapp/voxbook-server/internal/domain"

// VoiceMergeStrategy resolves conflicts when a character's voice profile
// arrives from more than one batch. The merge loop never hard-codes a
// policy; strategies are swappable and independently testable.
type VoiceMergeStrategy interface {
	// Merge combines an existing profile with a newly extracted one.
	// Either side may be nil. The result must not alias the inputs.
	Merge(existing, incoming *domain.VoiceProfile) *domain.VoiceProfile
	Name() string
}

// LastNonDefaultWins is the pipeline default. A field holding its declared
// default counts as "unset": any later non-default value overwrites it, a
// later default never overwrites a non-default, and a later different
// non-default overwrites an earlier one (most recent non-default wins).
type LastNonDefaultWins struct{}

func (LastNonDefaultWins) Name() string { return "last-non-default-wins" }

func (LastNonDefaultWins) Merge(existing, incoming *domain.VoiceProfile) *domain.VoiceProfile {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		out := *incoming
		return &out
	}

	out := *existing
	if incoming.Gender != domain.DefaultVoiceGender {
		out.Gender = incoming.Gender
	}
	if incoming.Age != domain.DefaultVoiceAge {
		out.Age = incoming.Age
	}
	if incoming.Accent != domain.DefaultVoiceAccent {
		out.Accent = incoming.Accent
	}
	if incoming.Pitch != domain.DefaultVoicePitch {
		out.Pitch = incoming.Pitch
	}
	if incoming.Speed != domain.DefaultVoiceSpeed {
		out.Speed = incoming.Speed
	}
	return &out
}

// PreferExisting keeps the first profile seen for a character and ignores
// later ones.
type PreferExisting struct{}

func (PreferExisting) Name() string { return "prefer-existing" }

func (PreferExisting) Merge(existing, incoming *domain.VoiceProfile) *domain.VoiceProfile {
	if existing != nil {
		out := *existing
		return &out
	}
	if incoming == nil {
		return nil
	}
	out := *incoming
	return &out
}

// PreferIncoming always takes the most recent profile wholesale.
type PreferIncoming struct{}

func (PreferIncoming) Name() string { return "prefer-incoming" }

func (PreferIncoming) Merge(existing, incoming *domain.VoiceProfile) *domain.VoiceProfile {
	if incoming != nil {
		out := *incoming
		return &out
	}
	if existing == nil {
		return nil
	}
	out := *existing
	return &out
}

package analysis

import (
	"testing"

	"github.com/voxbookapp/voxbook-server/internal/domain"
)

func voiceWith(mutate func(v *domain.VoiceProfile)) *domain.VoiceProfile {
	v := domain.DefaultVoiceProfile()
	if mutate != nil {
		mutate(&v)
	}
	return &v
}

func TestLastNonDefaultWins(t *testing.T) {
	strategy := LastNonDefaultWins{}

	tests := []struct {
		name     string
		existing *domain.VoiceProfile
		incoming *domain.VoiceProfile
		expected *domain.VoiceProfile
	}{
		{
			name:     "Both nil",
			existing: nil,
			incoming: nil,
			expected: nil,
		},
		{
			name:     "Nil incoming keeps existing",
			existing: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" }),
			incoming: nil,
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" }),
		},
		{
			name:     "Nil existing takes incoming",
			existing: nil,
			incoming: voiceWith(func(v *domain.VoiceProfile) { v.Accent = "british" }),
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Accent = "british" }),
		},
		{
			name:     "Non-default overwrites default",
			existing: voiceWith(nil),
			incoming: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.2 }),
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.2 }),
		},
		{
			name:     "Default never overwrites non-default",
			existing: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.2 }),
			incoming: voiceWith(nil),
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.2 }),
		},
		{
			name:     "Most recent non-default wins",
			existing: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" }),
			incoming: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "male"; v.Age = "elderly" }),
			// Gender: incoming "male" is the default value, so it does not
			// overwrite "female". Age: "elderly" is non-default and lands.
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Age = "elderly" }),
		},
		{
			name:     "Conflicting non-defaults take the later one",
			existing: voiceWith(func(v *domain.VoiceProfile) { v.Accent = "british" }),
			incoming: voiceWith(func(v *domain.VoiceProfile) { v.Accent = "american" }),
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Accent = "american" }),
		},
		{
			name:     "Fields merge independently",
			existing: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.3 }),
			incoming: voiceWith(func(v *domain.VoiceProfile) { v.Speed = 0.8 }),
			expected: voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female"; v.Pitch = 1.3; v.Speed = 0.8 }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strategy.Merge(tt.existing, tt.incoming)
			if tt.expected == nil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a profile, got nil")
			}
			if *got != *tt.expected {
				t.Errorf("merged = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestVoiceStrategies_NeverAlias(t *testing.T) {
	strategies := []VoiceMergeStrategy{
		LastNonDefaultWins{},
		PreferExisting{},
		PreferIncoming{},
	}

	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			existing := voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" })
			incoming := voiceWith(func(v *domain.VoiceProfile) { v.Accent = "asian" })

			got := strategy.Merge(existing, incoming)
			if got == nil {
				t.Fatal("expected a profile")
			}
			if got == existing || got == incoming {
				t.Error("result aliases an input")
			}

			// Mutating the result must not leak into the inputs.
			got.Pitch = 0.6
			if existing.Pitch == 0.6 || incoming.Pitch == 0.6 {
				t.Error("result shares memory with an input")
			}
		})
	}
}

func TestPreferExisting(t *testing.T) {
	strategy := PreferExisting{}

	first := voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" })
	second := voiceWith(func(v *domain.VoiceProfile) { v.Gender = "male"; v.Age = "child" })

	got := strategy.Merge(first, second)
	if got == nil || got.Gender != "female" || got.Age != domain.DefaultVoiceAge {
		t.Errorf("expected the first profile kept, got %+v", got)
	}

	if got := strategy.Merge(nil, second); got == nil || got.Age != "child" {
		t.Errorf("expected incoming when nothing exists, got %+v", got)
	}
	if got := strategy.Merge(nil, nil); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestPreferIncoming(t *testing.T) {
	strategy := PreferIncoming{}

	first := voiceWith(func(v *domain.VoiceProfile) { v.Gender = "female" })
	second := voiceWith(func(v *domain.VoiceProfile) { v.Age = "child" })

	got := strategy.Merge(first, second)
	if got == nil || got.Gender != domain.DefaultVoiceGender || got.Age != "child" {
		t.Errorf("expected the second profile wholesale, got %+v", got)
	}

	if got := strategy.Merge(first, nil); got == nil || got.Gender != "female" {
		t.Errorf("expected existing when nothing arrives, got %+v", got)
	}
}

package analysis

import (
	"sort"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/normalize"
)

// MergedCharacter accumulates one character's data across all batches of a
// chapter. One instance exists per distinct case-folded name. Owned by the
// merge step for the duration of one chapter's processing; not thread-safe.
type MergedCharacter struct {
	Name          string // display form, as first seen
	CanonicalName string
	Traits        []string // set semantics: insertion-ordered, no duplicates
	Dialogs       []string // narrative order, never deduplicated
	Voice         *domain.VoiceProfile
}

func (m *MergedCharacter) addTrait(trait string) {
	if trait == "" {
		return
	}
	for _, t := range m.Traits {
		if t == trait {
			return
		}
	}
	m.Traits = append(m.Traits, trait)
}

// Accumulator maps canonical names to their merged data for one chapter.
type Accumulator map[string]*MergedCharacter

// NewAccumulator returns an empty accumulator.
func NewAccumulator() Accumulator {
	return make(Accumulator)
}

// RestoreAccumulator rebuilds an accumulator from a checkpoint snapshot so
// a resumed run continues merging where the interrupted run stopped.
func RestoreAccumulator(snapshot []domain.AnalyzedCharacter) Accumulator {
	acc := make(Accumulator, len(snapshot))
	for _, c := range snapshot {
		key := normalize.Key(c.Name)
		if key == "" {
			continue
		}
		mc := &MergedCharacter{
			Name:          c.Name,
			CanonicalName: key,
			Traits:        append([]string(nil), c.Traits...),
			Dialogs:       append([]string(nil), c.Dialogs...),
		}
		if c.Voice != nil {
			voice := *c.Voice
			mc.Voice = &voice
		}
		acc[key] = mc
	}
	return acc
}

// Merge folds one batch's extraction into the accumulator. For each
// character: unseen names insert a new record; seen names union traits
// (idempotent), append dialogs (ordered, never deduplicated), and resolve
// voice conflicts through the strategy.
func (a Accumulator) Merge(batch BatchExtraction, voices VoiceMergeStrategy) {
	for _, in := range batch.Characters {
		key := normalize.Key(in.Name)
		if key == "" {
			continue
		}

		mc, ok := a[key]
		if !ok {
			mc = &MergedCharacter{Name: in.Name, CanonicalName: key}
			a[key] = mc
		}

		for _, t := range in.Traits {
			mc.addTrait(t)
		}
		mc.Dialogs = append(mc.Dialogs, in.Dialogs...)
		mc.Voice = voices.Merge(mc.Voice, in.Voice)
	}
}

// EnsureNarrator guarantees the reserved narration character exists, so
// every completed chapter analysis contains it even when the model never
// attributed narration explicitly.
func (a Accumulator) EnsureNarrator() {
	key := normalize.Key(domain.NarratorName)
	if _, ok := a[key]; !ok {
		a[key] = &MergedCharacter{Name: domain.NarratorName, CanonicalName: key}
	}
}

// DialogCount returns the total dialog lines across all characters.
func (a Accumulator) DialogCount() int {
	total := 0
	for _, mc := range a {
		total += len(mc.Dialogs)
	}
	return total
}

// Snapshot serializes the accumulator for checkpoints and artifacts,
// ordered by canonical name for determinism.
func (a Accumulator) Snapshot() []domain.AnalyzedCharacter {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.AnalyzedCharacter, 0, len(keys))
	for _, k := range keys {
		mc := a[k]
		ac := domain.AnalyzedCharacter{
			Name:    mc.Name,
			Traits:  append([]string(nil), mc.Traits...),
			Dialogs: append([]string(nil), mc.Dialogs...),
		}
		if mc.Voice != nil {
			voice := *mc.Voice
			ac.Voice = &voice
		}
		out = append(out, ac)
	}
	return out
}

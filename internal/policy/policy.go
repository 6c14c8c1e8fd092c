// Package policy decides which pipeline stages run for a detected language.
// It is the single source of branching truth: stages never re-check language
// eligibility themselves. The mapping is pure so it can be tested without any
// engine in the loop.
package policy

import "strings"

// Voice identifies a synthesis voice profile.
type Voice string

const (
	VoiceEN Voice = "en"
	VoiceDE Voice = "de"
	VoiceTR Voice = "tr"
)

// Plan is the language-dependent decision for one pipeline run.
//
// Invariants: Correct implies Lang is en or de; Voice is non-empty exactly
// for en, de and tr.
type Plan struct {
	Lang    string
	Correct bool
	Voice   Voice
}

// Synthesize reports whether the plan selects a synthesis voice.
func (p Plan) Synthesize() bool { return p.Voice != "" }

// PlanFor maps a detected language tag to a Plan. Tags match by prefix, so
// regional variants like "en-US" count as "en". An empty tag falls back to
// defaultLang, mirroring the recognition engine contract that detection may
// come back blank on silence.
func PlanFor(tag, defaultLang string) Plan {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "" {
		t = strings.ToLower(defaultLang)
	}
	switch {
	case strings.HasPrefix(t, "en"):
		return Plan{Lang: "en", Correct: true, Voice: VoiceEN}
	case strings.HasPrefix(t, "de"):
		return Plan{Lang: "de", Correct: true, Voice: VoiceDE}
	case strings.HasPrefix(t, "tr"):
		return Plan{Lang: "tr", Correct: false, Voice: VoiceTR}
	default:
		return Plan{Lang: t}
	}
}

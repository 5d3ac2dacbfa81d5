package service

import (
	"fmt"
	"strings"

	"github.com/niceassistant/assistant/internal/domain/entity"
)

// Band cut points. Intensity sliders use the wide band; the two stylistic
// axes (conversational, casual) are binary-ish and flip earlier.
const (
	intensityHigh = 67
	intensityLow  = 33
	axisHigh      = 60
	axisLow       = 40
)

type traitBand int

const (
	bandLow traitBand = iota
	bandMid
	bandHigh
)

func band(v, high, low int) traitBand {
	switch {
	case v >= high:
		return bandHigh
	case v <= low:
		return bandLow
	default:
		return bandMid
	}
}

type traitLines struct {
	low, mid, high string
}

func (l traitLines) pick(b traitBand) string {
	switch b {
	case bandHigh:
		return l.high
	case bandLow:
		return l.low
	default:
		return l.mid
	}
}

var (
	warmthLines = traitLines{
		high: "Warmth: high. Be warm, encouraging and emotionally attentive.",
		mid:  "Warmth: moderate. Be friendly without being effusive.",
		low:  "Warmth: low. Keep an even, matter-of-fact tone.",
	}
	creativityLines = traitLines{
		high: "Creativity: high. Offer imaginative ideas and vivid language.",
		mid:  "Creativity: moderate. Mix practical answers with the occasional fresh idea.",
		low:  "Creativity: low. Stick to conventional, proven answers.",
	}
	directnessLines = traitLines{
		high: "Directness: high. Lead with the answer and state opinions plainly.",
		mid:  "Directness: balanced. Be clear but tactful.",
		low:  "Directness: low. Be gentle and diplomatic, soften disagreement.",
	}
	conversationalLines = traitLines{
		high: "Style: conversational. Chat naturally and ask follow-up questions.",
		mid:  "Style: balanced between conversation and information.",
		low:  "Style: informational. Focus on facts and keep small talk minimal.",
	}
	casualLines = traitLines{
		high: "Register: casual. Relaxed wording and contractions are fine.",
		mid:  "Register: neutral. Neither stiff nor slangy.",
		low:  "Register: professional. Use polished, precise wording.",
	}
)

// RenderTraits turns persona sliders into instruction lines: one per slider,
// then optional gender and age lines. It is total; out-of-range sliders are
// clamped and unknown genders read as unspecified.
func RenderTraits(t entity.Traits) []string {
	t = t.Normalized()
	lines := []string{
		warmthLines.pick(band(t.Warmth, intensityHigh, intensityLow)),
		creativityLines.pick(band(t.Creativity, intensityHigh, intensityLow)),
		directnessLines.pick(band(t.Directness, intensityHigh, intensityLow)),
		conversationalLines.pick(band(t.Conversational, axisHigh, axisLow)),
		casualLines.pick(band(t.Casual, axisHigh, axisLow)),
	}
	if g := genderLabel(t); g != "" {
		lines = append(lines, fmt.Sprintf("Gender identity: %s.", g))
	}
	if t.Age != "" {
		lines = append(lines, fmt.Sprintf("Age: %s.", t.Age))
	}
	return lines
}

func genderLabel(t entity.Traits) string {
	switch t.Gender {
	case entity.GenderOther:
		return t.GenderOther
	case entity.GenderUnspecified:
		return ""
	case entity.GenderNonBinary:
		return "non-binary"
	default:
		return string(t.Gender)
	}
}

// PersonaInstructions renders the full persona block: identity, trait lines,
// personality details and the persona's own system prompt, in that order.
// A nil persona yields nothing.
func PersonaInstructions(p *entity.Persona) []string {
	if p == nil {
		return nil
	}
	lines := []string{fmt.Sprintf("You are %s.", p.Name)}
	lines = append(lines, RenderTraits(p.Traits)...)
	if d := strings.TrimSpace(p.PersonalityDetails); d != "" {
		lines = append(lines, "Personality details: "+d)
	}
	if sp := strings.TrimSpace(p.SystemPrompt); sp != "" {
		lines = append(lines, sp)
	}
	return lines
}

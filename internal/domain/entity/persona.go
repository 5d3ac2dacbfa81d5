package entity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Gender 人设性别
type Gender string

const (
	GenderUnspecified Gender = "unspecified"
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderNonBinary   Gender = "nonbinary"
	GenderOther       Gender = "other"
)

// TraitNeutral is the slider value used for any missing trait.
const TraitNeutral = 50

// Traits holds the persona sliders (0-100) plus presentation details.
// Conversational runs informational(0)..conversational(100) and Casual runs
// professional(0)..casual(100).
type Traits struct {
	Warmth         int    `json:"warmth"`
	Creativity     int    `json:"creativity"`
	Directness     int    `json:"directness"`
	Conversational int    `json:"conversational"`
	Casual         int    `json:"casual"`
	Gender         Gender `json:"gender"`
	GenderOther    string `json:"gender_other,omitempty"`
	Age            string `json:"age,omitempty"`
}

// DefaultTraits returns the neutral trait record.
func DefaultTraits() Traits {
	return Traits{
		Warmth:         TraitNeutral,
		Creativity:     TraitNeutral,
		Directness:     TraitNeutral,
		Conversational: TraitNeutral,
		Casual:         TraitNeutral,
		Gender:         GenderUnspecified,
	}
}

// Normalized clamps every slider into [0,100] and fills an unknown gender.
func (t Traits) Normalized() Traits {
	t.Warmth = clampTrait(t.Warmth)
	t.Creativity = clampTrait(t.Creativity)
	t.Directness = clampTrait(t.Directness)
	t.Conversational = clampTrait(t.Conversational)
	t.Casual = clampTrait(t.Casual)
	switch t.Gender {
	case GenderFemale, GenderMale, GenderNonBinary, GenderOther:
	default:
		t.Gender = GenderUnspecified
	}
	t.GenderOther = strings.TrimSpace(t.GenderOther)
	t.Age = strings.TrimSpace(t.Age)
	return t
}

// ParseTraits decodes a stored traits document. It never fails: unknown keys
// are ignored, numbers may arrive as strings or floats, and anything missing or
// malformed falls back to the neutral default.
func ParseTraits(raw []byte) Traits {
	t := DefaultTraits()
	if len(raw) == 0 {
		return t
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return t
	}
	t.Warmth = traitInt(doc["warmth"])
	t.Creativity = traitInt(doc["creativity"])
	t.Directness = traitInt(doc["directness"])
	t.Conversational = traitInt(doc["conversational"])
	t.Casual = traitInt(doc["casual"])
	if g, ok := doc["gender"].(string); ok {
		t.Gender = Gender(strings.ToLower(strings.TrimSpace(g)))
	}
	if g, ok := doc["gender_other"].(string); ok {
		t.GenderOther = g
	}
	switch age := doc["age"].(type) {
	case string:
		t.Age = age
	case float64:
		t.Age = strconv.FormatFloat(age, 'f', -1, 64)
	}
	return t.Normalized()
}

func traitInt(v any) int {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return TraitNeutral
		}
		return int(math.Round(n))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(math.Round(f))
		}
	}
	return TraitNeutral
}

func clampTrait(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// VoicePreference is a persona's preferred speech settings for one provider.
type VoicePreference struct {
	Voice string  `json:"voice,omitempty"`
	Model string  `json:"model,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// Persona 人设实体
type Persona struct {
	ID                 string
	UserID             string
	Name               string
	SystemPrompt       string
	PersonalityDetails string
	Traits             Traits
	Voices             map[string]VoicePreference // keyed by speech provider name
	DefaultModel       string
	AvatarURL          string
	WorkspaceIDs       []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPersona 创建人设
func NewPersona(id, userID, name string, now time.Time) (*Persona, error) {
	if id == "" {
		return nil, ErrInvalidPersonaID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidPersonaName
	}
	return &Persona{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Traits:    DefaultTraits(),
		Voices:    map[string]VoicePreference{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// VoiceFor returns the persona's preference for a speech provider, if any.
func (p *Persona) VoiceFor(provider string) VoicePreference {
	if p == nil || p.Voices == nil {
		return VoicePreference{}
	}
	return p.Voices[provider]
}

// InWorkspace reports whether the persona is linked to the workspace.
func (p *Persona) InWorkspace(workspaceID string) bool {
	for _, id := range p.WorkspaceIDs {
		if id == workspaceID {
			return true
		}
	}
	return false
}

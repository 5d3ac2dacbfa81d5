package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niceassistant/assistant/internal/domain/entity"
)

func TestRenderTraits_NeutralDefaults(t *testing.T) {
	lines := RenderTraits(entity.DefaultTraits())
	require.Len(t, lines, 5)
	assert.Equal(t, warmthLines.mid, lines[0])
	assert.Equal(t, casualLines.mid, lines[4])
}

func TestRenderTraits_IntensityCutPoints(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{67, warmthLines.high},
		{66, warmthLines.mid},
		{34, warmthLines.mid},
		{33, warmthLines.low},
		{0, warmthLines.low},
		{100, warmthLines.high},
	}
	for _, tt := range tests {
		tr := entity.DefaultTraits()
		tr.Warmth = tt.value
		assert.Equal(t, tt.want, RenderTraits(tr)[0], "warmth=%d", tt.value)
	}
}

func TestRenderTraits_AxisCutPoints(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{60, conversationalLines.high},
		{59, conversationalLines.mid},
		{41, conversationalLines.mid},
		{40, conversationalLines.low},
	}
	for _, tt := range tests {
		tr := entity.DefaultTraits()
		tr.Conversational = tt.value
		assert.Equal(t, tt.want, RenderTraits(tr)[3], "conversational=%d", tt.value)
	}
}

func TestRenderTraits_NeverFailsOnAnySliderValue(t *testing.T) {
	for v := -10; v <= 110; v++ {
		tr := entity.Traits{Warmth: v, Creativity: v, Directness: v, Conversational: v, Casual: v}
		assert.Len(t, RenderTraits(tr), 5)
	}
}

func TestRenderTraits_GenderAndAge(t *testing.T) {
	tr := entity.DefaultTraits()
	tr.Gender = entity.GenderOther
	tr.GenderOther = "genderfluid"
	tr.Age = "30s"

	lines := RenderTraits(tr)
	require.Len(t, lines, 7)
	assert.Equal(t, "Gender identity: genderfluid.", lines[5])
	assert.Equal(t, "Age: 30s.", lines[6])
}

func TestPersonaInstructions(t *testing.T) {
	assert.Nil(t, PersonaInstructions(nil))

	p := &entity.Persona{
		Name:               "Ari",
		Traits:             entity.DefaultTraits(),
		PersonalityDetails: "  loves astronomy ",
		SystemPrompt:       "Answer in English.",
	}
	lines := PersonaInstructions(p)
	require.Len(t, lines, 8)
	assert.Equal(t, "You are Ari.", lines[0])
	assert.Equal(t, "Personality details: loves astronomy", lines[6])
	assert.Equal(t, "Answer in English.", lines[7])
}

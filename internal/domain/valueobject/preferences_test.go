package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreferences_Defaults(t *testing.T) {
	p := ParsePreferences(nil)
	assert.Equal(t, "alloy", p.OpenAISpeech.Voice)
	assert.Equal(t, "gpt-4o-mini-tts", p.OpenAISpeech.Model)
	assert.Equal(t, 1.0, p.OpenAISpeech.Speed)
	assert.Equal(t, "1024x1024", p.ImageSize)
	assert.Equal(t, "auto", p.ImageQuality)
	assert.True(t, p.MemoryAutoSaveUserFacts)
	require.NotNil(t, p.Sampling.Temperature)
	assert.Equal(t, 0.7, *p.Sampling.Temperature)
	require.NotNil(t, p.Sampling.NumPredict)
	assert.Equal(t, 512, *p.Sampling.NumPredict)
}

func TestParsePreferences_WrongTypesFallBack(t *testing.T) {
	p := ParsePreferences(map[string]any{
		"tts_voice":              42.0,
		"tts_speed":              "9",
		"image_quality":          "hd",
		"image_local_allow_nsfw": "yes",
		"models_temperature":     "0.2",
		"video_model":            "sora-3",
		"stt_store_recordings":   []any{"x"},
	})
	assert.Equal(t, "42", p.OpenAISpeech.Voice)
	assert.Equal(t, MaxSpeechSpeed, p.OpenAISpeech.Speed)
	assert.Equal(t, "high", p.ImageQuality)
	assert.True(t, p.LocalImage.AllowNSFW)
	assert.Equal(t, 0.2, *p.Sampling.Temperature)
	assert.Equal(t, "sora-2", p.VideoModel)
	assert.False(t, p.STTStoreRecordings)
}

func TestClampSpeechSpeed(t *testing.T) {
	assert.Equal(t, 0.25, ClampSpeechSpeed(0.1))
	assert.Equal(t, 4.0, ClampSpeechSpeed(10))
	assert.Equal(t, 1.0, ClampSpeechSpeed(0))
	assert.Equal(t, 1.5, ClampSpeechSpeed(1.5))
}

func TestSamplingOptions_Merge(t *testing.T) {
	base := DefaultPreferences().Sampling
	temp := 1.2
	merged := base.Merge(&SamplingOptions{Temperature: &temp})
	assert.Equal(t, 1.2, merged.AsMap()["temperature"])
	assert.Equal(t, 1.0, merged.AsMap()["top_p"])
	assert.NotContains(t, merged.AsMap(), "presence_penalty")
}

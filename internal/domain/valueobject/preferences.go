package valueobject

import (
	"math"
	"strconv"
	"strings"
)

// Speech speed bounds accepted by the speech providers.
const (
	MinSpeechSpeed = 0.25
	MaxSpeechSpeed = 4.0
)

// SpeechDefaults are the per-provider voice defaults from preferences.
type SpeechDefaults struct {
	Voice  string
	Model  string
	Speed  float64
	Format string
}

// LocalImageTuning holds the Automatic1111 pass-through knobs.
type LocalImageTuning struct {
	BaseURL     string
	Auth        string // "user:password"
	Steps       int    // 0 derives steps from quality
	CFGScale    float64
	Sampler     string
	Scheduler   string
	Checkpoint  string
	Seed        int64
	Additional  string // raw JSON object
	AllowNSFW   bool
	AllowCustom bool
	CustomSize  string
}

// Preferences is the typed view of a user's free-form preference map.
// Every field has a documented fallback; see DefaultPreferences.
type Preferences struct {
	GlobalDefaultModel      string
	DefaultMemoryMode       string
	MemoryAutoSaveUserFacts bool
	ImageModelDirectives    bool

	OpenAISpeech SpeechDefaults
	LocalSpeech  SpeechDefaults

	STTLanguage        string
	STTStoreRecordings bool

	ImageSize    string
	ImageQuality string
	ImageModel   string
	LocalImage   LocalImageTuning

	VideoModel   string
	VideoSeconds string
	VideoSize    string

	Sampling SamplingOptions
}

// DefaultPreferences returns the preferences of a user who never set any.
func DefaultPreferences() Preferences {
	temperature, topP, numPredict := 0.7, 1.0, 512
	return Preferences{
		DefaultMemoryMode:       "auto",
		MemoryAutoSaveUserFacts: true,
		ImageModelDirectives:    true,
		OpenAISpeech: SpeechDefaults{
			Voice:  "alloy",
			Model:  "gpt-4o-mini-tts",
			Speed:  1,
			Format: "mp3",
		},
		LocalSpeech: SpeechDefaults{
			Voice:  "af_heart",
			Model:  "kokoro",
			Speed:  1,
			Format: "wav",
		},
		STTLanguage:  "auto",
		ImageSize:    DefaultImageSize,
		ImageQuality: DefaultImageQuality,
		ImageModel:   "gpt-image-1",
		LocalImage: LocalImageTuning{
			CFGScale: 7,
			Sampler:  "DPM++ 2M",
			Seed:     -1,
		},
		VideoModel:   VideoModelSora2,
		VideoSeconds: DefaultVideoSeconds,
		VideoSize:    "720x1280",
		Sampling: SamplingOptions{
			Temperature: &temperature,
			TopP:        &topP,
			NumPredict:  &numPredict,
		},
	}
}

// ParsePreferences reads a raw preference map defensively. Values of the wrong
// type are ignored in favor of the default, never rejected.
func ParsePreferences(raw map[string]any) Preferences {
	p := DefaultPreferences()
	r := prefReader(raw)

	p.GlobalDefaultModel = r.str("global_default_model", p.GlobalDefaultModel)
	p.DefaultMemoryMode = r.str("default_memory_mode", p.DefaultMemoryMode)
	p.MemoryAutoSaveUserFacts = r.boolean("memory_auto_save_user_facts", p.MemoryAutoSaveUserFacts)
	p.ImageModelDirectives = r.boolean("image_model_directives", p.ImageModelDirectives)

	p.OpenAISpeech.Voice = r.str("tts_voice", p.OpenAISpeech.Voice)
	p.OpenAISpeech.Model = r.str("tts_model", p.OpenAISpeech.Model)
	p.OpenAISpeech.Speed = ClampSpeechSpeed(r.float("tts_speed", p.OpenAISpeech.Speed))
	p.OpenAISpeech.Format = r.str("tts_format", p.OpenAISpeech.Format)
	p.LocalSpeech.Voice = r.str("tts_local_voice", p.LocalSpeech.Voice)
	p.LocalSpeech.Model = r.str("tts_local_model", p.LocalSpeech.Model)
	p.LocalSpeech.Speed = ClampSpeechSpeed(r.float("tts_local_speed", p.LocalSpeech.Speed))
	p.LocalSpeech.Format = r.str("tts_local_format", r.str("tts_format", p.LocalSpeech.Format))

	p.STTLanguage = r.str("stt_language", p.STTLanguage)
	p.STTStoreRecordings = r.boolean("stt_store_recordings", p.STTStoreRecordings)

	p.ImageSize = r.str("image_size", p.ImageSize)
	p.ImageQuality = NormalizeImageQuality(r.str("image_quality", p.ImageQuality))
	p.ImageModel = r.str("image_model", p.ImageModel)
	p.LocalImage.BaseURL = r.str("image_local_base_url", p.LocalImage.BaseURL)
	p.LocalImage.Auth = r.str("image_local_auth", p.LocalImage.Auth)
	p.LocalImage.Steps = int(r.float("image_local_steps", float64(p.LocalImage.Steps)))
	p.LocalImage.CFGScale = r.float("image_local_cfg_scale", p.LocalImage.CFGScale)
	p.LocalImage.Sampler = r.str("image_local_sampler", p.LocalImage.Sampler)
	p.LocalImage.Scheduler = r.str("image_local_scheduler", p.LocalImage.Scheduler)
	p.LocalImage.Checkpoint = r.str("image_local_checkpoint", p.LocalImage.Checkpoint)
	p.LocalImage.Seed = int64(r.float("image_local_seed", float64(p.LocalImage.Seed)))
	p.LocalImage.Additional = r.str("image_local_additional_parameters", p.LocalImage.Additional)
	p.LocalImage.AllowNSFW = r.boolean("image_local_allow_nsfw", p.LocalImage.AllowNSFW)
	p.LocalImage.AllowCustom = r.boolean("image_local_allow_custom_size", p.LocalImage.AllowCustom)
	p.LocalImage.CustomSize = r.str("image_local_size", p.LocalImage.CustomSize)

	p.VideoModel = NormalizeVideoModel(r.str("video_model", p.VideoModel))
	p.VideoSeconds = NormalizeVideoSeconds(r.str("video_seconds", p.VideoSeconds))
	p.VideoSize = NormalizeVideoSize(r.str("video_size", p.VideoSize), p.VideoModel)

	if v, ok := r.optFloat("models_temperature"); ok {
		p.Sampling.Temperature = &v
	}
	if v, ok := r.optFloat("models_top_p"); ok {
		p.Sampling.TopP = &v
	}
	if v, ok := r.optFloat("models_num_predict"); ok {
		n := int(v)
		p.Sampling.NumPredict = &n
	}
	if v, ok := r.optFloat("models_presence_penalty"); ok {
		p.Sampling.PresencePenalty = &v
	}
	if v, ok := r.optFloat("models_frequency_penalty"); ok {
		p.Sampling.FrequencyPenalty = &v
	}
	return p
}

// ClampSpeechSpeed bounds a speed into [MinSpeechSpeed, MaxSpeechSpeed];
// non-positive and NaN values mean normal speed.
func ClampSpeechSpeed(speed float64) float64 {
	if math.IsNaN(speed) || speed <= 0 {
		return 1
	}
	return math.Min(MaxSpeechSpeed, math.Max(MinSpeechSpeed, speed))
}

type prefReader map[string]any

func (r prefReader) str(key, def string) string {
	switch v := r[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

func (r prefReader) optFloat(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

func (r prefReader) float(key string, def float64) float64 {
	if v, ok := r.optFloat(key); ok {
		return v
	}
	return def
}

func (r prefReader) boolean(key string, def bool) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

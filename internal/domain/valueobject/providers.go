package valueobject

import (
	"strings"
)

// Provider identity is a closed set of variants per capability. Callers
// dispatch with a type switch; the unexported marker methods keep the sets
// closed to this package.

// SpeechProvider selects the text-to-speech backend.
type SpeechProvider interface {
	ProviderName() string
	speechProvider()
}

// OpenAISpeech synthesizes through the OpenAI speech endpoint.
type OpenAISpeech struct {
	APIKey string
	Voice  string
	Model  string
	Format string
	Speed  float64
}

// LocalSpeech synthesizes through a Kokoro-compatible server.
type LocalSpeech struct {
	BaseURL string
	Voice   string
	Model   string
	Format  string
	Speed   float64
}

// DisabledSpeech means the user has no speech backend. Requested keeps the
// original setting so the error can name it.
type DisabledSpeech struct {
	Requested string
}

func (OpenAISpeech) ProviderName() string   { return "openai" }
func (LocalSpeech) ProviderName() string    { return "local" }
func (DisabledSpeech) ProviderName() string { return "disabled" }
func (OpenAISpeech) speechProvider()        {}
func (LocalSpeech) speechProvider()         {}
func (DisabledSpeech) speechProvider()      {}

// TranscriptionProvider selects the speech-to-text backend.
type TranscriptionProvider interface {
	ProviderName() string
	transcriptionProvider()
}

// OpenAITranscription transcribes with whisper through the OpenAI API.
type OpenAITranscription struct {
	APIKey   string
	Model    string
	Language string // empty lets the provider detect it
}

// LocalTranscription is accepted as a setting but has no backend yet.
type LocalTranscription struct{}

// DisabledTranscription means transcription is turned off.
type DisabledTranscription struct {
	Requested string
}

func (OpenAITranscription) ProviderName() string     { return "openai" }
func (LocalTranscription) ProviderName() string      { return "local" }
func (DisabledTranscription) ProviderName() string   { return "disabled" }
func (OpenAITranscription) transcriptionProvider()   {}
func (LocalTranscription) transcriptionProvider()    {}
func (DisabledTranscription) transcriptionProvider() {}

// ImageProvider selects the image generation backend.
type ImageProvider interface {
	ProviderName() string
	imageProvider()
}

// OpenAIImage generates through the OpenAI images endpoint.
type OpenAIImage struct {
	APIKey  string
	Model   string
	Size    string // one of ImageSizes
	Quality string // one of ImageQualities
}

// LocalImage generates through an Automatic1111-compatible txt2img endpoint.
type LocalImage struct {
	BaseURL    string
	AuthHeader string
	Width      int
	Height     int
	Steps      int
	CFGScale   float64
	Sampler    string
	Scheduler  string
	Checkpoint string
	Seed       int64
	Additional map[string]any
	AllowNSFW  bool
}

// DisabledImage means image generation is turned off.
type DisabledImage struct {
	Requested string
}

func (OpenAIImage) ProviderName() string   { return "openai" }
func (LocalImage) ProviderName() string    { return "local" }
func (DisabledImage) ProviderName() string { return "disabled" }
func (OpenAIImage) imageProvider()         {}
func (LocalImage) imageProvider()          {}
func (DisabledImage) imageProvider()       {}

// VideoProvider selects the video generation backend.
type VideoProvider interface {
	ProviderName() string
	videoProvider()
}

// OpenAIVideo generates through the OpenAI videos endpoint.
type OpenAIVideo struct {
	APIKey  string
	Model   string
	Seconds string
	Size    string
}

// DisabledVideo means video generation is turned off.
type DisabledVideo struct {
	Requested string
}

func (OpenAIVideo) ProviderName() string   { return "openai" }
func (DisabledVideo) ProviderName() string { return "disabled" }
func (OpenAIVideo) videoProvider()         {}
func (DisabledVideo) videoProvider()       {}

// ProviderDefaults are the server-side fallbacks from configuration.
type ProviderDefaults struct {
	OpenAIAPIKey      string
	KokoroBaseURL     string
	LocalImageBaseURL string
	LocalImageAuth    string
}

// ProviderSettings is the subset of user settings that picks backends.
type ProviderSettings struct {
	TTS          string
	STT          string
	Image        string
	Video        string
	OpenAIAPIKey string
}

func (s ProviderSettings) apiKey(d ProviderDefaults) string {
	if k := strings.TrimSpace(s.OpenAIAPIKey); k != "" {
		return k
	}
	return d.OpenAIAPIKey
}

func providerName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SelectSpeech builds the speech variant for the user's settings.
func SelectSpeech(s ProviderSettings, p Preferences, d ProviderDefaults) SpeechProvider {
	switch providerName(s.TTS) {
	case "openai":
		return OpenAISpeech{
			APIKey: s.apiKey(d),
			Voice:  p.OpenAISpeech.Voice,
			Model:  p.OpenAISpeech.Model,
			Format: p.OpenAISpeech.Format,
			Speed:  ClampSpeechSpeed(p.OpenAISpeech.Speed),
		}
	case "local":
		return LocalSpeech{
			BaseURL: d.KokoroBaseURL,
			Voice:   p.LocalSpeech.Voice,
			Model:   p.LocalSpeech.Model,
			Format:  p.LocalSpeech.Format,
			Speed:   ClampSpeechSpeed(p.LocalSpeech.Speed),
		}
	default:
		return DisabledSpeech{Requested: s.TTS}
	}
}

// SelectTranscription builds the transcription variant.
func SelectTranscription(s ProviderSettings, p Preferences, d ProviderDefaults) TranscriptionProvider {
	switch providerName(s.STT) {
	case "openai":
		lang := p.STTLanguage
		if strings.EqualFold(lang, "auto") {
			lang = ""
		}
		return OpenAITranscription{APIKey: s.apiKey(d), Model: "whisper-1", Language: lang}
	case "local":
		return LocalTranscription{}
	default:
		return DisabledTranscription{Requested: s.STT}
	}
}

// SelectImage builds the image variant. It fails only on settings that have
// no sane default: a malformed engine URL or additional-parameters document.
func SelectImage(s ProviderSettings, p Preferences, d ProviderDefaults) (ImageProvider, error) {
	switch providerName(s.Image) {
	case "openai":
		return OpenAIImage{
			APIKey:  s.apiKey(d),
			Model:   p.ImageModel,
			Size:    NormalizeImageSize(p.ImageSize),
			Quality: NormalizeImageQuality(p.ImageQuality),
		}, nil
	case "local":
		baseURL, err := NormalizeLocalImageBaseURL(p.LocalImage.BaseURL, d.LocalImageBaseURL)
		if err != nil {
			return nil, err
		}
		extra, err := ParseAdditionalParameters(p.LocalImage.Additional)
		if err != nil {
			return nil, err
		}
		sizeToken := p.ImageSize
		if p.LocalImage.AllowCustom && p.LocalImage.CustomSize != "" {
			sizeToken = p.LocalImage.CustomSize
		}
		w, h := ParseImageSize(sizeToken, p.LocalImage.AllowCustom)
		auth := p.LocalImage.Auth
		if auth == "" {
			auth = d.LocalImageAuth
		}
		return LocalImage{
			BaseURL:    baseURL,
			AuthHeader: BasicAuthHeader(auth),
			Width:      w,
			Height:     h,
			Steps:      LocalImageSteps(p.ImageQuality, p.LocalImage.Steps),
			CFGScale:   p.LocalImage.CFGScale,
			Sampler:    p.LocalImage.Sampler,
			Scheduler:  p.LocalImage.Scheduler,
			Checkpoint: p.LocalImage.Checkpoint,
			Seed:       p.LocalImage.Seed,
			Additional: extra,
			AllowNSFW:  p.LocalImage.AllowNSFW,
		}, nil
	default:
		return DisabledImage{Requested: s.Image}, nil
	}
}

// SelectVideo builds the video variant.
func SelectVideo(s ProviderSettings, p Preferences, d ProviderDefaults) VideoProvider {
	switch providerName(s.Video) {
	case "openai":
		model := NormalizeVideoModel(p.VideoModel)
		return OpenAIVideo{
			APIKey:  s.apiKey(d),
			Model:   model,
			Seconds: NormalizeVideoSeconds(p.VideoSeconds),
			Size:    NormalizeVideoSize(p.VideoSize, model),
		}
	default:
		return DisabledVideo{Requested: s.Video}
	}
}

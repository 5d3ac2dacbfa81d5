package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

const (
	kokoroName = "kokoro"
	a1111Name  = "automatic1111"
)

// LocalClient covers the self-hosted engines: a Kokoro-compatible speech
// server and an Automatic1111-compatible diffusion server. Base URLs come
// with each provider variant because users may point at their own hosts.
type LocalClient struct {
	kokoro        *resty.Client
	diffusion     *resty.Client
	kokoroBaseURL string
	logger        *zap.Logger
}

// NewLocalClient creates the local engine client.
func NewLocalClient(cfg config.ProvidersConfig, logger *zap.Logger) *LocalClient {
	kokoroTimeout := cfg.Kokoro.Timeout
	if kokoroTimeout <= 0 {
		kokoroTimeout = 60 * time.Second
	}
	diffusionTimeout := cfg.Automatic1111.Timeout
	if diffusionTimeout <= 0 {
		diffusionTimeout = 300 * time.Second
	}
	return &LocalClient{
		kokoro: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(kokoroTimeout),
		diffusion: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(diffusionTimeout),
		kokoroBaseURL: strings.TrimRight(cfg.Kokoro.BaseURL, "/"),
		logger:        logger.With(zap.String("provider", "local")),
	}
}

// ---- Kokoro speech ----

type kokoroPayload struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Speech synthesizes through Kokoro. The server may answer with the audio
// bytes, a JSON envelope pointing at a download URL, or base64 audio.
func (c *LocalClient) Speech(ctx context.Context, p valueobject.LocalSpeech, req service.SpeechRequest) (*service.GeneratedMedia, error) {
	base := strings.TrimRight(firstNonEmpty(p.BaseURL, c.kokoroBaseURL), "/")
	if base == "" {
		return nil, domainErrors.NewConfigurationError("local speech server URL is not configured")
	}

	payload := kokoroPayload{
		Model:          firstNonEmpty(req.Model, p.Model, "kokoro"),
		Input:          req.Text,
		Voice:          firstNonEmpty(req.Voice, p.Voice, "af_heart"),
		ResponseFormat: firstNonEmpty(p.Format, "mp3"),
		Speed:          p.Speed,
	}
	if req.Speed > 0 {
		payload.Speed = req.Speed
	}
	payload.Speed = valueobject.ClampSpeechSpeed(payload.Speed)

	resp, err := c.kokoro.R().
		SetContext(ctx).
		SetBody(&payload).
		Post(base + "/v1/audio/speech")
	if err != nil {
		return nil, service.NewTransportError(kokoroName, "speech", err)
	}
	if resp.IsError() {
		return nil, service.NewHTTPError(kokoroName, "speech", resp.StatusCode(), resp.Body())
	}

	data, err := c.speechAudio(ctx, base, resp)
	if err != nil {
		return nil, err
	}
	ext, ctype := audioFormat(payload.ResponseFormat)
	return &service.GeneratedMedia{
		Data:        data,
		Ext:         ext,
		ContentType: ctype,
		Provider:    "local",
		Model:       payload.Model,
	}, nil
}

type kokoroEnvelope struct {
	URL         string `json:"url"`
	AudioURL    string `json:"audio_url"`
	DownloadURL string `json:"download_url"`
	Path        string `json:"path"`
	Audio       string `json:"audio"`
	Data        string `json:"data"`
	AudioBase64 string `json:"audio_base64"`
}

func (c *LocalClient) speechAudio(ctx context.Context, base string, resp *resty.Response) ([]byte, error) {
	body := resp.Body()
	if !strings.Contains(resp.Header().Get("Content-Type"), "json") {
		if len(body) == 0 {
			return nil, service.NewProtocolError(kokoroName, "speech", "empty audio response", nil)
		}
		return body, nil
	}

	var env kokoroEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, service.NewProtocolError(kokoroName, "speech", "undecodable speech envelope", err)
	}

	if link := firstNonEmpty(env.URL, env.AudioURL, env.DownloadURL, env.Path); link != "" {
		if strings.HasPrefix(link, "/") {
			link = base + link
		}
		dl, err := c.kokoro.R().SetContext(ctx).Get(link)
		if err != nil {
			return nil, service.NewTransportError(kokoroName, "speech.download", err)
		}
		if dl.IsError() {
			return nil, service.NewHTTPError(kokoroName, "speech.download", dl.StatusCode(), dl.Body())
		}
		if len(dl.Body()) == 0 {
			return nil, service.NewProtocolError(kokoroName, "speech.download", "empty audio download", nil)
		}
		return dl.Body(), nil
	}

	if encoded := firstNonEmpty(env.AudioBase64, env.Audio, env.Data); encoded != "" {
		data, err := decodeBase64Payload(encoded)
		if err != nil {
			return nil, service.NewProtocolError(kokoroName, "speech", "invalid base64 audio", err)
		}
		return data, nil
	}
	return nil, service.NewProtocolError(kokoroName, "speech", "speech envelope carried no audio", nil)
}

// Voices lists the speech server's voices. Both a list of ids and a list of
// objects are accepted.
func (c *LocalClient) Voices(ctx context.Context) ([]service.Voice, error) {
	if c.kokoroBaseURL == "" {
		return nil, domainErrors.NewConfigurationError("local speech server URL is not configured")
	}
	resp, err := c.kokoro.R().SetContext(ctx).Get(c.kokoroBaseURL + "/v1/audio/voices")
	if err != nil {
		return nil, service.NewTransportError(kokoroName, "voices", err)
	}
	if resp.IsError() {
		return nil, service.NewHTTPError(kokoroName, "voices", resp.StatusCode(), resp.Body())
	}

	var env struct {
		Voices json.RawMessage `json:"voices"`
	}
	raw := resp.Body()
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Voices) > 0 {
		raw = env.Voices
	}
	voices, err := parseVoices(raw)
	if err != nil {
		return nil, service.NewProtocolError(kokoroName, "voices", "undecodable voice list", err)
	}
	return voices, nil
}

func parseVoices(raw []byte) ([]service.Voice, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		out := make([]service.Voice, 0, len(ids))
		for _, id := range ids {
			out = append(out, service.Voice{ID: id, Name: id})
		}
		return out, nil
	}
	var objs []struct {
		ID      string `json:"id"`
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, err
	}
	out := make([]service.Voice, 0, len(objs))
	for _, o := range objs {
		id := firstNonEmpty(o.ID, o.VoiceID, o.Name)
		if id == "" {
			continue
		}
		out = append(out, service.Voice{ID: id, Name: firstNonEmpty(o.Name, id)})
	}
	return out, nil
}

// ---- Automatic1111 txt2img ----

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Txt2Img renders one image. Additional parameters are merged last and win
// over the computed ones.
func (c *LocalClient) Txt2Img(ctx context.Context, p valueobject.LocalImage, prompt string) (*service.GeneratedMedia, error) {
	if p.BaseURL == "" {
		return nil, domainErrors.NewConfigurationError("local image server URL is not configured")
	}

	payload := map[string]any{
		"prompt":          prompt,
		"negative_prompt": service.LocalNegativePrompt(p.AllowNSFW),
		"width":           p.Width,
		"height":          p.Height,
		"steps":           p.Steps,
		"seed":            p.Seed,
		"batch_size":      1,
		"n_iter":          1,
	}
	if p.CFGScale > 0 {
		payload["cfg_scale"] = p.CFGScale
	}
	if p.Sampler != "" {
		payload["sampler_name"] = p.Sampler
	}
	if p.Scheduler != "" {
		payload["scheduler"] = p.Scheduler
	}
	if p.Checkpoint != "" {
		payload["override_settings"] = map[string]any{"sd_model_checkpoint": p.Checkpoint}
	}
	for k, v := range p.Additional {
		payload[k] = v
	}

	req := c.diffusion.R().SetContext(ctx).SetBody(payload)
	if p.AuthHeader != "" {
		req.SetHeader("Authorization", p.AuthHeader)
	}
	start := time.Now()
	resp, err := req.Post(strings.TrimRight(p.BaseURL, "/") + "/sdapi/v1/txt2img")
	if err != nil {
		return nil, service.NewTransportError(a1111Name, "image", err)
	}
	if resp.IsError() {
		return nil, service.NewHTTPError(a1111Name, "image", resp.StatusCode(), resp.Body())
	}

	var out txt2imgResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, service.NewProtocolError(a1111Name, "image", "undecodable txt2img response", err)
	}
	if len(out.Images) == 0 {
		return nil, service.NewProtocolError(a1111Name, "image", "txt2img returned no images", nil)
	}
	data, err := decodeBase64Payload(out.Images[0])
	if err != nil {
		return nil, service.NewProtocolError(a1111Name, "image", "invalid base64 image", err)
	}

	c.logger.Debug("txt2img completed",
		zap.Int("width", p.Width),
		zap.Int("height", p.Height),
		zap.Int("steps", p.Steps),
		zap.Duration("latency", time.Since(start)),
	)
	return &service.GeneratedMedia{
		Data:        data,
		Ext:         ".png",
		ContentType: "image/png",
		Provider:    "local",
		Model:       p.Checkpoint,
	}, nil
}

// decodeBase64Payload accepts plain base64 or a data URI.
func decodeBase64Payload(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

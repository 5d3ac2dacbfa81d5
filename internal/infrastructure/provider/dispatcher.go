// Package provider dispatches media generation to the backend a user picked.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// Dispatcher routes each request by provider variant. It never retries,
// except for the video payload shrink done by the OpenAI video backend.
type Dispatcher struct {
	openai *OpenAIClient
	local  *LocalClient
	video  config.VideoConfig
	clock  service.Clock
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []func(service.VideoTransition)
}

// Compile-time interface check
var _ service.MediaDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given clients.
func NewDispatcher(openai *OpenAIClient, local *LocalClient, video config.VideoConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		openai: openai,
		local:  local,
		video:  video,
		clock:  service.SystemClock{},
		logger: logger.With(zap.String("component", "dispatcher")),
	}
}

// WithClock replaces the poll clock. Used by tests.
func (d *Dispatcher) WithClock(clock service.Clock) *Dispatcher {
	d.clock = clock
	return d
}

// OnVideoTransition registers a listener attached to every video job.
func (d *Dispatcher) OnVideoTransition(fn func(service.VideoTransition)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Voices lists the local speech server's voices.
func (d *Dispatcher) Voices(ctx context.Context) ([]service.Voice, error) {
	return d.local.Voices(ctx)
}

func disabledError(capability, requested string) error {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, "disabled") {
		return domainErrors.NewConfigurationError(fmt.Sprintf("%s is disabled in settings", capability))
	}
	return domainErrors.NewConfigurationError(fmt.Sprintf("%s provider %q is not supported", capability, requested))
}

// Synthesize implements service.MediaDispatcher.
func (d *Dispatcher) Synthesize(ctx context.Context, p valueobject.SpeechProvider, req service.SpeechRequest) (*service.GeneratedMedia, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, domainErrors.NewInvalidInputError("text is required")
	}
	switch v := p.(type) {
	case valueobject.OpenAISpeech:
		return d.openai.Speech(ctx, v, req)
	case valueobject.LocalSpeech:
		return d.local.Speech(ctx, v, req)
	case valueobject.DisabledSpeech:
		return nil, disabledError("Text-to-speech", v.Requested)
	default:
		return nil, disabledError("Text-to-speech", fmt.Sprintf("%T", p))
	}
}

// Transcribe implements service.MediaDispatcher.
func (d *Dispatcher) Transcribe(ctx context.Context, p valueobject.TranscriptionProvider, req service.TranscriptionRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", domainErrors.NewInvalidInputError("audio is required")
	}
	switch v := p.(type) {
	case valueobject.OpenAITranscription:
		return d.openai.Transcribe(ctx, v, req)
	case valueobject.LocalTranscription:
		return "", domainErrors.NewConfigurationError("Local speech-to-text is not implemented yet")
	case valueobject.DisabledTranscription:
		return "", disabledError("Speech-to-text", v.Requested)
	default:
		return "", disabledError("Speech-to-text", fmt.Sprintf("%T", p))
	}
}

// GenerateImage implements service.MediaDispatcher. The prompt is sent as
// given; callers apply the provider rewrite.
func (d *Dispatcher) GenerateImage(ctx context.Context, p valueobject.ImageProvider, prompt string) (*service.GeneratedMedia, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domainErrors.NewInvalidInputError("prompt is required")
	}
	switch v := p.(type) {
	case valueobject.OpenAIImage:
		return d.openai.Image(ctx, v, prompt)
	case valueobject.LocalImage:
		return d.local.Txt2Img(ctx, v, prompt)
	case valueobject.DisabledImage:
		return nil, disabledError("Image generation", v.Requested)
	default:
		return nil, disabledError("Image generation", fmt.Sprintf("%T", p))
	}
}

// GenerateVideo implements service.MediaDispatcher. It blocks until the job
// completes, fails or runs out of poll attempts.
func (d *Dispatcher) GenerateVideo(ctx context.Context, p valueobject.VideoProvider, prompt string, reference *service.MediaContent) (*service.GeneratedMedia, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domainErrors.NewInvalidInputError("prompt is required")
	}
	v, ok := p.(valueobject.OpenAIVideo)
	if !ok {
		if dv, isDisabled := p.(valueobject.DisabledVideo); isDisabled {
			return nil, disabledError("Video generation", dv.Requested)
		}
		return nil, disabledError("Video generation", fmt.Sprintf("%T", p))
	}
	if strings.TrimSpace(v.APIKey) == "" {
		return nil, domainErrors.NewConfigurationError("OpenAI API key is not configured")
	}

	runner := service.NewVideoJobRunner(d.openai.VideoBackend(v.APIKey), d.clock, d.video.PollInterval, d.video.MaxAttempts, d.logger)
	d.mu.RLock()
	for _, fn := range d.listeners {
		runner.OnTransition(fn)
	}
	d.mu.RUnlock()
	if fn := service.VideoListenerFrom(ctx); fn != nil {
		runner.OnTransition(fn)
	}

	res, err := runner.Run(ctx, service.VideoSubmission{
		Prompt:    prompt,
		Model:     v.Model,
		Seconds:   v.Seconds,
		Size:      v.Size,
		Reference: reference,
	})
	if err != nil {
		return nil, err
	}
	return &service.GeneratedMedia{
		Data:        res.Data,
		Ext:         res.Ext,
		ContentType: res.ContentType,
		Provider:    openAIName,
		Model:       v.Model,
	}, nil
}

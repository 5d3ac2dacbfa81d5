package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// SpeechInput is a text-to-speech request. Zero fields fall back to the
// persona's preferred voice, then to the user's preferences.
type SpeechInput struct {
	UserID    string
	PersonaID string
	ChatID    string
	Text      string
	Voice     string
	Format    string
	Speed     float64
}

// SpeechResult carries the audio and the artifact it was stored as.
type SpeechResult struct {
	Audio       []byte
	ContentType string
	ArtifactID  string
	URL         string
}

// TranscribeInput is an uploaded recording.
type TranscribeInput struct {
	UserID      string
	ChatID      string
	Audio       []byte
	Filename    string
	ContentType string
}

// TranscribeResult is the recognized text, plus the stored recording when the
// user keeps recordings.
type TranscribeResult struct {
	Text       string `json:"text"`
	ArtifactID string `json:"artifactId,omitempty"`
}

// VoiceUseCase 语音合成与识别
type VoiceUseCase struct {
	settings repository.SettingsRepository
	personas repository.PersonaRepository
	media    *mediaRunner
	logger   *zap.Logger
}

// NewVoiceUseCase creates the speech use case.
func NewVoiceUseCase(settings repository.SettingsRepository, personas repository.PersonaRepository, deps MediaDeps, logger *zap.Logger, now func() time.Time) *VoiceUseCase {
	logger = logger.With(zap.String("component", "voice"))
	return &VoiceUseCase{
		settings: settings,
		personas: personas,
		media:    newMediaRunner(deps, logger, now),
		logger:   logger,
	}
}

// Synthesize renders text to audio and stores it as an artifact.
func (uc *VoiceUseCase) Synthesize(ctx context.Context, in SpeechInput) (*SpeechResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domainErrors.NewInvalidInputError("text is required")
	}
	settings, err := uc.settings.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	var persona *entity.Persona
	if in.PersonaID != "" {
		if persona, err = uc.personas.Get(ctx, in.UserID, in.PersonaID); err != nil {
			return nil, err
		}
	}

	prefs := valueobject.ParsePreferences(settings.Preferences)
	provider := withSpeechFormat(
		valueobject.SelectSpeech(providerSettings(settings), prefs, uc.media.deps.Defaults),
		in.Format,
	)

	voice := persona.VoiceFor(provider.ProviderName())
	req := service.SpeechRequest{
		Text:  in.Text,
		Voice: firstNonEmpty(in.Voice, voice.Voice),
		Model: voice.Model,
		Speed: in.Speed,
	}
	if req.Speed <= 0 {
		req.Speed = voice.Speed
	}

	media, err := uc.media.deps.Dispatcher.Synthesize(ctx, provider, req)
	if err != nil {
		return nil, uc.speechError(ctx, in.UserID, in.ChatID, service.MediaSpeech, provider.ProviderName(), err)
	}

	artifact, err := uc.media.store(ctx, mediaJob{
		UserID:  in.UserID,
		ChatID:  in.ChatID,
		Persona: persona,
		Kind:    service.MediaSpeech,
	}, media)
	if err != nil {
		return nil, err
	}
	url := ArtifactURL(artifact.ID)
	uc.media.publish(ctx, in.UserID, eventbus.EventTypeMediaGenerated, eventbus.MediaGeneratedPayload{
		ChatID:     in.ChatID,
		ArtifactID: artifact.ID,
		Kind:       string(artifact.Kind),
		Provider:   media.Provider,
		URL:        url,
		Bytes:      len(media.Data),
	})
	return &SpeechResult{
		Audio:       media.Data,
		ContentType: media.ContentType,
		ArtifactID:  artifact.ID,
		URL:         url,
	}, nil
}

// withSpeechFormat applies a per-request audio format override.
func withSpeechFormat(p valueobject.SpeechProvider, format string) valueobject.SpeechProvider {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return p
	}
	switch v := p.(type) {
	case valueobject.OpenAISpeech:
		v.Format = format
		return v
	case valueobject.LocalSpeech:
		v.Format = format
		return v
	}
	return p
}

// Transcribe converts a recording to text.
func (uc *VoiceUseCase) Transcribe(ctx context.Context, in TranscribeInput) (*TranscribeResult, error) {
	if len(in.Audio) == 0 {
		return nil, domainErrors.NewInvalidInputError("audio is required")
	}
	settings, err := uc.settings.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	prefs := valueobject.ParsePreferences(settings.Preferences)
	provider := valueobject.SelectTranscription(providerSettings(settings), prefs, uc.media.deps.Defaults)

	text, err := uc.media.deps.Dispatcher.Transcribe(ctx, provider, service.TranscriptionRequest{
		Audio:       in.Audio,
		Filename:    in.Filename,
		ContentType: in.ContentType,
	})
	if err != nil {
		return nil, uc.speechError(ctx, in.UserID, in.ChatID, service.MediaTranscription, provider.ProviderName(), err)
	}

	result := &TranscribeResult{Text: text}
	if prefs.STTStoreRecordings {
		artifact, err := uc.media.store(ctx, mediaJob{
			UserID: in.UserID,
			ChatID: in.ChatID,
			Kind:   service.MediaTranscription,
		}, &service.GeneratedMedia{
			Data:        in.Audio,
			Ext:         recordingExt(in.Filename),
			ContentType: in.ContentType,
			Provider:    provider.ProviderName(),
		})
		if err != nil {
			uc.logger.Warn("Failed to store recording", zap.Error(err))
		} else {
			result.ArtifactID = artifact.ID
		}
	}
	return result, nil
}

// speechError keeps configuration and validation errors as they are and
// normalizes provider failures into a service-unavailable error carrying the
// user-facing message.
func (uc *VoiceUseCase) speechError(ctx context.Context, userID, chatID string, kind service.MediaKind, provider string, err error) error {
	f := describeFailure(err, kind, provider)
	if f.logged {
		uc.logger.Warn("Speech request failed",
			zap.String("kind", string(kind)),
			zap.String("provider", provider),
			zap.String("detail", f.detail),
			zap.String("request_id", f.requestID),
			zap.Error(err),
		)
	}
	uc.media.publish(ctx, userID, eventbus.EventTypeMediaFailed, eventbus.MediaFailedPayload{
		ChatID:    chatID,
		Kind:      string(kind),
		Provider:  provider,
		ErrorKind: f.kind,
		Message:   f.message,
		RequestID: f.requestID,
	})
	if !f.logged {
		return err
	}
	return domainErrors.NewServiceUnavailableError(f.message, err)
}

func recordingExt(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		return strings.ToLower(filename[i:])
	}
	return ".webm"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

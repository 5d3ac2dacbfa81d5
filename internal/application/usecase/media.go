package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// ArtifactURL is the API path a stored artifact is served from.
func ArtifactURL(artifactID string) string {
	return "/api/v1/artifacts/" + artifactID
}

// MediaDeps are the collaborators shared by every use case that produces media.
type MediaDeps struct {
	Dispatcher service.MediaDispatcher
	Blobs      repository.BlobStore
	Artifacts  repository.ArtifactRepository
	Bus        eventbus.Bus
	Defaults   valueobject.ProviderDefaults
}

// mediaRunner runs one image or video generation and turns its outcome into
// chat-visible text. Failures are never returned as errors.
type mediaRunner struct {
	deps   MediaDeps
	logger *zap.Logger
	now    func() time.Time
}

func newMediaRunner(deps MediaDeps, logger *zap.Logger, now func() time.Time) *mediaRunner {
	if now == nil {
		now = time.Now
	}
	return &mediaRunner{deps: deps, logger: logger, now: now}
}

type mediaJob struct {
	UserID  string
	ChatID  string
	Persona *entity.Persona
	Kind    service.MediaKind
	Prompt  string
	// Visual is appended after the prompt rewrite, never rewritten itself.
	Visual string
	// FromOffer marks a prompt that was already refined for an offer; it
	// only goes through the detail gate again.
	FromOffer bool
	Settings  *entity.Settings
	Prefs     valueobject.Preferences
	Reference *service.MediaContent
}

type mediaOutcome struct {
	Artifact  *entity.Artifact
	URL       string
	ReplyText string
	Provider  string
	Failed    bool
}

func providerSettings(s *entity.Settings) valueobject.ProviderSettings {
	return valueobject.ProviderSettings{
		TTS:          s.TTSProvider,
		STT:          s.STTProvider,
		Image:        s.ImageProvider,
		Video:        s.VideoProvider,
		OpenAIAPIKey: s.OpenAIAPIKey,
	}
}

func (m *mediaRunner) run(ctx context.Context, job mediaJob) mediaOutcome {
	ps := providerSettings(job.Settings)

	var (
		media    *service.GeneratedMedia
		provider string
		err      error
	)
	switch job.Kind {
	case service.MediaVideo:
		p := valueobject.SelectVideo(ps, job.Prefs, m.deps.Defaults)
		provider = p.ProviderName()
		ctx = service.ContextWithVideoListener(ctx, func(t service.VideoTransition) {
			m.publish(ctx, job.UserID, eventbus.EventTypeVideoJobState, eventbus.VideoJobStatePayload{
				JobID: t.JobID,
				From:  string(t.From),
				To:    string(t.To),
				Poll:  t.Poll,
			})
		})
		prompt := service.SanitizeTerms(job.Prompt)
		if v := strings.TrimSpace(job.Visual); v != "" {
			prompt += "\n\n" + service.SanitizeTerms(v)
		}
		media, err = m.deps.Dispatcher.GenerateVideo(ctx, p, prompt, job.Reference)
	default:
		var p valueobject.ImageProvider
		p, err = valueobject.SelectImage(ps, job.Prefs, m.deps.Defaults)
		if err != nil {
			err = domainErrors.NewInvalidInputError(err.Error())
		} else {
			provider = p.ProviderName()
			media, err = m.deps.Dispatcher.GenerateImage(ctx, p, imagePrompt(p, job))
		}
	}
	if err != nil {
		return m.failed(ctx, job, provider, err)
	}

	artifact, err := m.store(ctx, job, media)
	if err != nil {
		return m.failed(ctx, job, provider, err)
	}

	url := ArtifactURL(artifact.ID)
	m.publish(ctx, job.UserID, eventbus.EventTypeMediaGenerated, eventbus.MediaGeneratedPayload{
		ChatID:     job.ChatID,
		ArtifactID: artifact.ID,
		Kind:       string(artifact.Kind),
		Provider:   provider,
		URL:        url,
		Bytes:      len(media.Data),
	})
	return mediaOutcome{
		Artifact:  artifact,
		URL:       url,
		ReplyText: mediaReply(job.Kind, url),
		Provider:  provider,
	}
}

// imagePrompt rewrites the prompt for the provider and appends the visual
// identity notes once.
func imagePrompt(p valueobject.ImageProvider, job mediaJob) string {
	var prompt string
	if job.FromOffer {
		prompt = service.RefineDirectivePrompt(p, job.Prompt)
	} else {
		prompt = service.PrepareImagePrompt(p, job.Prompt)
	}
	return service.AppendImageContext(p, prompt, job.Visual)
}

func mediaReply(kind service.MediaKind, url string) string {
	if kind == service.MediaVideo {
		return fmt.Sprintf("[Watch the video](%s)", url)
	}
	return fmt.Sprintf("![Generated image](%s)", url)
}

func artifactKind(kind service.MediaKind) entity.ArtifactKind {
	switch kind {
	case service.MediaVideo:
		return entity.ArtifactVideo
	case service.MediaImage:
		return entity.ArtifactImage
	default:
		return entity.ArtifactAudio
	}
}

// store writes the bytes to the blob store and records the artifact.
func (m *mediaRunner) store(ctx context.Context, job mediaJob, media *service.GeneratedMedia) (*entity.Artifact, error) {
	handle, err := m.deps.Blobs.Store(ctx, media.Data, media.Ext)
	if err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}
	artifact, err := entity.NewArtifact(uuid.New().String(), job.UserID, artifactKind(job.Kind), media.Ext, handle, m.now().UTC())
	if err != nil {
		return nil, err
	}
	artifact.ChatID = job.ChatID
	if job.Persona != nil {
		artifact.PersonaID = job.Persona.ID
	}
	artifact.ContentType = media.ContentType
	artifact.Provider = media.Provider
	if err := m.deps.Artifacts.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	return artifact, nil
}

// failed turns a dispatch failure into the reply text. Configuration and
// validation errors already carry a user-facing message; everything else
// goes through the error normalizer and is logged with its detail.
func (m *mediaRunner) failed(ctx context.Context, job mediaJob, provider string, err error) mediaOutcome {
	f := describeFailure(err, job.Kind, provider)
	if f.logged {
		m.logger.Warn("Media generation failed",
			zap.String("kind", string(job.Kind)),
			zap.String("provider", provider),
			zap.String("detail", f.detail),
			zap.String("request_id", f.requestID),
			zap.Error(err),
		)
	}
	m.publish(ctx, job.UserID, eventbus.EventTypeMediaFailed, eventbus.MediaFailedPayload{
		ChatID:    job.ChatID,
		Kind:      string(job.Kind),
		Provider:  provider,
		ErrorKind: f.kind,
		Message:   f.message,
		RequestID: f.requestID,
	})
	return mediaOutcome{ReplyText: f.message, Provider: provider, Failed: true}
}

type failure struct {
	message   string
	kind      string // metrics label
	detail    string
	requestID string
	logged    bool
}

func describeFailure(err error, kind service.MediaKind, provider string) failure {
	switch {
	case domainErrors.IsConfiguration(err):
		return failure{message: domainErrors.MessageOf(err), kind: "configuration"}
	case domainErrors.IsInvalidInput(err):
		return failure{message: domainErrors.MessageOf(err), kind: "invalid_input"}
	}
	norm := service.NormalizeError(err, kind, service.FamilyFor(provider))
	f := failure{
		message:   norm.UserMessage,
		kind:      "internal",
		detail:    norm.Detail,
		requestID: norm.RequestID,
		logged:    true,
	}
	var pe *service.ProviderError
	if errors.As(err, &pe) {
		f.kind = pe.Kind.String()
	}
	return f
}

func (m *mediaRunner) publish(ctx context.Context, userID, eventType string, payload any) {
	if m.deps.Bus == nil {
		return
	}
	m.deps.Bus.Publish(ctx, eventbus.NewEvent(eventType, userID, payload))
}

package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

// SettingsUpdate changes provider choices and merges preference keys. A nil
// preference value removes the key.
type SettingsUpdate struct {
	TTSProvider   *string
	STTProvider   *string
	ImageProvider *string
	VideoProvider *string
	OpenAIAPIKey  *string
	Preferences   map[string]any
}

// SettingsUseCase 用户设置
type SettingsUseCase struct {
	settings repository.SettingsRepository
	defaults valueobject.ProviderDefaults
	now      func() time.Time
	logger   *zap.Logger
}

// NewSettingsUseCase creates the settings use case.
func NewSettingsUseCase(settings repository.SettingsRepository, defaults valueobject.ProviderDefaults, logger *zap.Logger) *SettingsUseCase {
	return &SettingsUseCase{
		settings: settings,
		defaults: defaults,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "settings")),
	}
}

// Get returns the user's settings, defaults when none were saved.
func (uc *SettingsUseCase) Get(ctx context.Context, userID string) (*entity.Settings, error) {
	return uc.settings.Get(ctx, userID)
}

var knownProviders = map[string]struct{}{
	entity.ProviderOpenAI:   {},
	entity.ProviderLocal:    {},
	entity.ProviderDisabled: {},
}

func providerChoice(field string, v *string, dst *string) error {
	if v == nil {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(*v))
	if name == "" {
		name = entity.ProviderDisabled
	}
	if _, ok := knownProviders[name]; !ok {
		return domainErrors.NewInvalidInputError(field + " must be openai, local or disabled")
	}
	*dst = name
	return nil
}

// Update applies the changes and saves. Image settings that can never work
// (bad engine URL, malformed additional parameters) are rejected here.
func (uc *SettingsUseCase) Update(ctx context.Context, userID string, in SettingsUpdate) (*entity.Settings, error) {
	s, err := uc.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		field string
		v     *string
		dst   *string
	}{
		{"tts_provider", in.TTSProvider, &s.TTSProvider},
		{"stt_provider", in.STTProvider, &s.STTProvider},
		{"image_provider", in.ImageProvider, &s.ImageProvider},
		{"video_provider", in.VideoProvider, &s.VideoProvider},
	} {
		if err := providerChoice(c.field, c.v, c.dst); err != nil {
			return nil, err
		}
	}
	if in.OpenAIAPIKey != nil {
		s.OpenAIAPIKey = strings.TrimSpace(*in.OpenAIAPIKey)
	}
	if in.Preferences != nil {
		s.MergePreferences(in.Preferences)
	}

	prefs := valueobject.ParsePreferences(s.Preferences)
	if _, err := valueobject.SelectImage(providerSettings(s), prefs, uc.defaults); err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}

	s.UpdatedAt = uc.now().UTC()
	if err := uc.settings.Save(ctx, s); err != nil {
		return nil, err
	}
	uc.logger.Info("Settings updated", zap.String("user_id", userID))
	return s, nil
}

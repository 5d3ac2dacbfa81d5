package entity

import "time"

// Provider names stored in settings. Anything else is treated as disabled.
const (
	ProviderOpenAI   = "openai"
	ProviderLocal    = "local"
	ProviderDisabled = "disabled"
)

// Settings 用户设置
// Preferences is the free-form preference map; it is parsed into a typed
// structure at the boundary and never passed raw through the pipeline.
type Settings struct {
	UserID        string
	TTSProvider   string
	STTProvider   string
	ImageProvider string
	VideoProvider string
	OpenAIAPIKey  string
	Preferences   map[string]any
	UpdatedAt     time.Time
}

// DefaultSettings returns the settings of a user who never saved any.
func DefaultSettings(userID string) *Settings {
	return &Settings{
		UserID:        userID,
		TTSProvider:   ProviderDisabled,
		STTProvider:   ProviderDisabled,
		ImageProvider: ProviderDisabled,
		VideoProvider: ProviderDisabled,
		Preferences:   map[string]any{},
	}
}

// MergePreferences overlays updates onto the stored preference map.
// A nil value removes the key.
func (s *Settings) MergePreferences(updates map[string]any) {
	if s.Preferences == nil {
		s.Preferences = map[string]any{}
	}
	for k, v := range updates {
		if v == nil {
			delete(s.Preferences, k)
			continue
		}
		s.Preferences[k] = v
	}
}

package valueobject

// SamplingOptions are the chat model tunables. Nil fields are left to the
// model's own defaults.
type SamplingOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Merge returns s with every field set in override replacing the original.
func (s SamplingOptions) Merge(override *SamplingOptions) SamplingOptions {
	if override == nil {
		return s
	}
	if override.Temperature != nil {
		s.Temperature = override.Temperature
	}
	if override.TopP != nil {
		s.TopP = override.TopP
	}
	if override.NumPredict != nil {
		s.NumPredict = override.NumPredict
	}
	if override.PresencePenalty != nil {
		s.PresencePenalty = override.PresencePenalty
	}
	if override.FrequencyPenalty != nil {
		s.FrequencyPenalty = override.FrequencyPenalty
	}
	return s
}

// AsMap renders the options in the shape the chat engine expects.
func (s SamplingOptions) AsMap() map[string]any {
	out := map[string]any{}
	if s.Temperature != nil {
		out["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		out["top_p"] = *s.TopP
	}
	if s.NumPredict != nil {
		out["num_predict"] = *s.NumPredict
	}
	if s.PresencePenalty != nil {
		out["presence_penalty"] = *s.PresencePenalty
	}
	if s.FrequencyPenalty != nil {
		out["frequency_penalty"] = *s.FrequencyPenalty
	}
	return out
}

package valueobject

import "strings"

const (
	VideoModelSora2    = "sora-2"
	VideoModelSora2Pro = "sora-2-pro"

	DefaultVideoSeconds = "4"
)

var videoSeconds = []string{"4", "8", "12"}

// videoSizes lists the frame sizes per model; the first entry is the default.
var videoSizes = map[string][]string{
	VideoModelSora2:    {"720x1280", "1280x720"},
	VideoModelSora2Pro: {"1024x1792", "1792x1024", "720x1280", "1280x720"},
}

// NormalizeVideoModel maps anything unknown to the cheaper model.
func NormalizeVideoModel(model string) string {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case VideoModelSora2Pro:
		return VideoModelSora2Pro
	default:
		return VideoModelSora2
	}
}

// NormalizeVideoSeconds accepts only the supported clip lengths.
func NormalizeVideoSeconds(seconds string) string {
	seconds = strings.TrimSpace(seconds)
	for _, s := range videoSeconds {
		if s == seconds {
			return s
		}
	}
	return DefaultVideoSeconds
}

// NormalizeVideoSize returns size when the model supports it, else the
// model's default frame size.
func NormalizeVideoSize(size, model string) string {
	sizes := videoSizes[NormalizeVideoModel(model)]
	size = strings.ToLower(strings.TrimSpace(size))
	for _, s := range sizes {
		if s == size {
			return s
		}
	}
	return sizes[0]
}

// VideoSizesFor lists the supported frame sizes for a model.
func VideoSizesFor(model string) []string {
	sizes := videoSizes[NormalizeVideoModel(model)]
	out := make([]string, len(sizes))
	copy(out, sizes)
	return out
}

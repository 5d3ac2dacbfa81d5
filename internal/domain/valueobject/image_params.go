package valueobject

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Closed enumerations accepted by the image providers.
var (
	ImageSizes     = []string{"1024x1024", "1024x1536", "1536x1024", "auto"}
	ImageQualities = []string{"low", "medium", "high", "auto"}
)

const (
	DefaultImageSize    = "1024x1024"
	DefaultImageQuality = "auto"

	// DefaultLocalImageBaseURL is where an Automatic1111 server listens by default.
	DefaultLocalImageBaseURL = "http://127.0.0.1:7860"

	maxCustomImageSide = 4096
)

var imageQualityAliases = map[string]string{
	"standard": "medium",
	"hd":       "high",
}

// NormalizeImageSize maps any value outside ImageSizes to DefaultImageSize.
func NormalizeImageSize(size string) string {
	size = strings.ToLower(strings.TrimSpace(size))
	for _, s := range ImageSizes {
		if s == size {
			return s
		}
	}
	return DefaultImageSize
}

// NormalizeImageQuality resolves legacy aliases and falls back to "auto".
func NormalizeImageQuality(quality string) string {
	quality = strings.ToLower(strings.TrimSpace(quality))
	if alias, ok := imageQualityAliases[quality]; ok {
		return alias
	}
	for _, q := range ImageQualities {
		if q == quality {
			return q
		}
	}
	return DefaultImageQuality
}

// ParseImageSize returns the pixel dimensions for a size token. "auto" and
// unknown values resolve to 1024x1024; arbitrary WxH tokens are honored only
// when allowCustom is set.
func ParseImageSize(size string, allowCustom bool) (int, int) {
	token := strings.ToLower(strings.TrimSpace(size))
	if allowCustom {
		if w, h, ok := splitDimensions(token); ok {
			return w, h
		}
	}
	normalized := NormalizeImageSize(token)
	if normalized == "auto" {
		normalized = DefaultImageSize
	}
	w, h, _ := splitDimensions(normalized)
	return w, h
}

func splitDimensions(token string) (int, int, bool) {
	parts := strings.Split(token, "x")
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if w <= 0 || h <= 0 || w > maxCustomImageSide || h > maxCustomImageSide {
		return 0, 0, false
	}
	return w, h, true
}

// LocalImageSteps derives sampling steps from quality unless explicitly overridden.
func LocalImageSteps(quality string, override int) int {
	if override > 0 {
		return override
	}
	switch NormalizeImageQuality(quality) {
	case "low":
		return 20
	case "high":
		return 38
	default:
		return 28
	}
}

// ParseAdditionalParameters decodes the free-form txt2img override document.
// Blank input yields nil; anything that is not a JSON object is rejected.
func ParseAdditionalParameters(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("additional parameters are not valid JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("additional parameters must be a JSON object")
	}
	return obj, nil
}

// NormalizeLocalImageBaseURL validates a user-supplied engine address. Blank
// values fall back to the server default; values without an http(s) scheme
// are rejected rather than guessed at.
func NormalizeLocalImageBaseURL(raw, fallback string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		raw = DefaultLocalImageBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid image server URL %q: expected http(s)://host:port", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BasicAuthHeader builds an Authorization header value from a "user:password"
// credential. Returns "" when no credential is configured.
func BasicAuthHeader(credential string) string {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credential))
}

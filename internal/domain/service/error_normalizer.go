package service

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// MediaKind names the capability a failed call belonged to.
type MediaKind string

const (
	MediaImage         MediaKind = "image"
	MediaVideo         MediaKind = "video"
	MediaSpeech        MediaKind = "speech"
	MediaTranscription MediaKind = "transcription"
)

// ProviderFamily decides how much of the provider identity a message may show.
type ProviderFamily int

const (
	// FamilyGeneric never names the provider.
	FamilyGeneric ProviderFamily = iota
	// FamilyOpenAI names OpenAI so the user can fix their key or plan.
	FamilyOpenAI
	// FamilyLocal is a self-hosted engine; messages say "image server" and
	// never name the engine.
	FamilyLocal
)

// FamilyFor maps a provider variant name to its family.
func FamilyFor(providerName string) ProviderFamily {
	switch providerName {
	case "openai":
		return FamilyOpenAI
	case "local":
		return FamilyLocal
	default:
		return FamilyGeneric
	}
}

// NormalizedError is the user-facing rendering of a provider failure.
// UserMessage goes into the chat; Detail and RequestID are for operators.
type NormalizedError struct {
	UserMessage string
	Detail      string
	RequestID   string
}

var requestIDPattern = regexp.MustCompile(`req_[A-Za-z0-9]+`)

var unsupportedSizePattern = regexp.MustCompile(`(?i)(invalid|unsupported|not supported).{0,40}size|size.{0,40}(invalid|unsupported|not supported)`)

// NormalizeError classifies a failed generation call. It never returns an
// empty UserMessage.
func NormalizeError(err error, kind MediaKind, family ProviderFamily) NormalizedError {
	if kind == MediaVideo {
		family = FamilyOpenAI
	}

	var pe *ProviderError
	isProvider := errors.As(err, &pe)

	var detail string
	switch {
	case isProvider && len(pe.Body) > 0:
		detail = ExtractErrorDetail(pe.Body)
	case isProvider && pe.Message != "" && pe.Cause == nil:
		detail = pe.Message
	case err != nil:
		detail = err.Error()
	}

	out := NormalizedError{Detail: detail, RequestID: requestIDPattern.FindString(detail)}
	if out.RequestID == "" && isProvider {
		out.RequestID = pe.RequestID
	}

	if strings.Contains(strings.ToLower(detail), "safety") {
		out.UserMessage = "Your request was flagged by safety filters. Try rephrasing it with different wording."
		return out
	}
	if kind == MediaImage && unsupportedSizePattern.MatchString(detail) {
		out.UserMessage = "That image size isn't supported. Choose one of: 1024x1024, 1024x1536, 1536x1024, auto."
		return out
	}

	w := wordingFor(kind, family)
	switch {
	case !isProvider:
		if isTimeout(err) {
			out.UserMessage = w.timeout
		} else {
			out.UserMessage = w.generic
		}
	case pe.Kind == ProviderErrHTTP:
		out.UserMessage = w.forStatus(pe.StatusCode)
	case pe.Kind == ProviderErrConnection:
		out.UserMessage = w.unreachable
	case pe.Kind == ProviderErrTimeout:
		out.UserMessage = w.timeout
	case pe.Kind == ProviderErrJobFailed:
		out.UserMessage = w.jobFailed
	default:
		out.UserMessage = w.generic
	}
	return out
}

// ExtractErrorDetail pulls the most useful message out of an error body:
// error.message, then message, then detail, then the raw text.
func ExtractErrorDetail(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		switch e := doc["error"].(type) {
		case map[string]any:
			if m, ok := e["message"].(string); ok && m != "" {
				return m
			}
		case string:
			if e != "" {
				return e
			}
		}
		for _, key := range []string{"message", "detail"} {
			if m, ok := doc[key].(string); ok && m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}

type failureWording struct {
	auth, rateLimit, badRequest, outage string
	unreachable, timeout, jobFailed     string
	generic                             string
}

func (w failureWording) forStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return w.auth
	case status == 429:
		return w.rateLimit
	case status == 400 || status == 404 || status == 422:
		return w.badRequest
	case status >= 500:
		return w.outage
	default:
		return w.generic
	}
}

func wordingFor(kind MediaKind, family ProviderFamily) failureWording {
	if kind == MediaVideo {
		return failureWording{
			auth:        "OpenAI rejected the video request. Please check API key and Sora access in settings.",
			rateLimit:   "OpenAI is rate limiting video requests right now. Wait a minute and try again.",
			badRequest:  "OpenAI couldn't generate that video with the current settings. Try sora-2, 4 seconds, 720x1280.",
			outage:      "OpenAI video generation is temporarily unavailable. Try again shortly.",
			unreachable: "OpenAI could not be reached for video generation. Check the server's network connection.",
			timeout:     "OpenAI video generation timed out. Try again, ideally with a shorter clip.",
			jobFailed:   "OpenAI reported that the video could not be generated. Try a different prompt or settings.",
			generic:     "OpenAI video generation failed unexpectedly. Try again.",
		}
	}

	noun := string(kind)
	switch family {
	case FamilyOpenAI:
		return failureWording{
			auth:        "OpenAI rejected the " + noun + " request. Please check API key settings.",
			rateLimit:   "OpenAI is rate limiting " + noun + " requests right now. Wait a minute and try again.",
			badRequest:  "OpenAI couldn't generate that " + noun + ". Try rephrasing or choosing different settings.",
			outage:      "OpenAI " + noun + " service is temporarily unavailable. Try again shortly.",
			unreachable: "OpenAI could not be reached. Check the server's network connection.",
			timeout:     "The OpenAI " + noun + " request timed out. Try again.",
			jobFailed:   "OpenAI couldn't finish the " + noun + ". Try again.",
			generic:     "The " + noun + " request failed unexpectedly. Try again.",
		}
	case FamilyLocal:
		server := "local " + noun + " server"
		return failureWording{
			auth:        "The " + server + " rejected the request: authentication failed. Check the server credentials in settings.",
			rateLimit:   "The " + server + " is busy. Wait a moment and try again.",
			badRequest:  "The " + server + " couldn't generate that " + noun + ". Check the model and parameters in settings.",
			outage:      "The " + server + " hit an internal error. Check its logs and try again.",
			unreachable: "The " + server + " could not be reached. Check that it is running and the address is correct.",
			timeout:     "The " + server + " timed out. Try again or lower the quality settings.",
			jobFailed:   "The " + server + " couldn't finish the " + noun + ". Try again.",
			generic:     "The " + server + " failed unexpectedly. Try again.",
		}
	default:
		return failureWording{
			auth:        capitalize(noun) + " generation failed: check API key and provider permissions.",
			rateLimit:   capitalize(noun) + " generation is rate limited right now. Wait a minute and try again.",
			badRequest:  "The provider couldn't generate that " + noun + ". Try rephrasing or choosing different settings.",
			outage:      "The " + noun + " provider is temporarily unavailable. Try again shortly.",
			unreachable: "The " + noun + " provider could not be reached. Check the network connection.",
			timeout:     "The " + noun + " request timed out. Try again.",
			jobFailed:   "The " + noun + " provider couldn't finish the request. Try again.",
			generic:     "The " + noun + " request failed unexpectedly. Try again.",
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

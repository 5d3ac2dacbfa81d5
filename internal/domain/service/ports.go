package service

import (
	"context"

	"github.com/niceassistant/assistant/internal/domain/valueobject"
)

// ChatMessage is one entry of the message list sent to the chat model.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatModel is a chat-completion backend returning one text reply.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, opts valueobject.SamplingOptions) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// GeneratedMedia is a successful dispatch result before it is stored.
type GeneratedMedia struct {
	Data        []byte
	Ext         string // ".png", ".mp3", ".mp4", ...
	ContentType string
	Provider    string
	Model       string
}

// SpeechRequest carries the text plus optional per-persona voice overrides.
// Zero fields keep the provider variant's value.
type SpeechRequest struct {
	Text  string
	Voice string
	Model string
	Speed float64
}

// TranscriptionRequest is an uploaded audio clip.
type TranscriptionRequest struct {
	Audio       []byte
	Filename    string
	ContentType string
}

// MediaDispatcher runs one generation against the provider variant it is
// handed. Implementations must not retry except the video payload shrink.
type MediaDispatcher interface {
	Synthesize(ctx context.Context, p valueobject.SpeechProvider, req SpeechRequest) (*GeneratedMedia, error)
	Transcribe(ctx context.Context, p valueobject.TranscriptionProvider, req TranscriptionRequest) (string, error)
	GenerateImage(ctx context.Context, p valueobject.ImageProvider, prompt string) (*GeneratedMedia, error)
	GenerateVideo(ctx context.Context, p valueobject.VideoProvider, prompt string, reference *MediaContent) (*GeneratedMedia, error)
}

// Voice is one selectable voice of a speech backend.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

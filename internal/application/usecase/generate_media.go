package usecase

import (
	"context"

	"github.com/niceassistant/assistant/internal/domain/service"
)

// GenerateMediaInput is an explicit image or video request.
type GenerateMediaInput struct {
	UserID    string
	ChatID    string
	PersonaID string
	Prompt    string
	// FromOffer is set when Prompt is a media offer's prompt being accepted.
	FromOffer bool
}

// GenerateMediaResult mirrors what the media endpoints return.
type GenerateMediaResult struct {
	OK        bool   `json:"ok"`
	ReplyText string `json:"replyText"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	ChatID    string `json:"chatId"`
}

// GenerateMediaUseCase runs explicit media requests as media-path turns, so
// the exchange is persisted in the chat like any other turn.
type GenerateMediaUseCase struct {
	converse *ConverseUseCase
}

// NewGenerateMediaUseCase creates the use case on top of the orchestrator.
func NewGenerateMediaUseCase(converse *ConverseUseCase) *GenerateMediaUseCase {
	return &GenerateMediaUseCase{converse: converse}
}

// Image generates an image for the prompt.
func (uc *GenerateMediaUseCase) Image(ctx context.Context, in GenerateMediaInput) (*GenerateMediaResult, error) {
	return uc.run(ctx, in, service.IntentImage)
}

// Video generates a video for the prompt. It blocks for the whole job.
func (uc *GenerateMediaUseCase) Video(ctx context.Context, in GenerateMediaInput) (*GenerateMediaResult, error) {
	return uc.run(ctx, in, service.IntentVideo)
}

func (uc *GenerateMediaUseCase) run(ctx context.Context, in GenerateMediaInput, intent service.Intent) (*GenerateMediaResult, error) {
	res, err := uc.converse.executeMedia(ctx, TurnInput{
		UserID:    in.UserID,
		ChatID:    in.ChatID,
		PersonaID: in.PersonaID,
		Text:      in.Prompt,
	}, intent, in.FromOffer)
	if err != nil {
		return nil, err
	}
	return &GenerateMediaResult{
		OK:        !res.Failed,
		ReplyText: res.Reply,
		MediaURL:  res.MediaURL,
		ChatID:    res.ChatID,
	}, nil
}

package usecase

import (
	"context"

	"github.com/niceassistant/assistant/internal/domain/entity"
	"github.com/niceassistant/assistant/internal/domain/repository"
)

// DefaultMessagePage is how many messages a chat transcript returns when no
// limit is given.
const DefaultMessagePage = 100

// ChatUseCase exposes chats, their transcripts and stored artifacts.
type ChatUseCase struct {
	chats     repository.ChatRepository
	messages  repository.MessageRepository
	artifacts repository.ArtifactRepository
	blobs     repository.BlobStore
}

// NewChatUseCase 创建会话查询用例
func NewChatUseCase(chats repository.ChatRepository, messages repository.MessageRepository, artifacts repository.ArtifactRepository, blobs repository.BlobStore) *ChatUseCase {
	return &ChatUseCase{chats: chats, messages: messages, artifacts: artifacts, blobs: blobs}
}

// List returns the user's visible chats, most recently updated first.
func (uc *ChatUseCase) List(ctx context.Context, userID string) ([]*entity.Chat, error) {
	return uc.chats.ListByUser(ctx, userID)
}

// Messages returns the last limit messages of a chat in chronological order.
func (uc *ChatUseCase) Messages(ctx context.Context, userID, chatID string, limit int) ([]*entity.Message, error) {
	if _, err := uc.chats.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	msgs, err := uc.messages.Recent(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// OpenArtifact returns an artifact and its bytes. Artifacts of other users
// are reported as not found.
func (uc *ChatUseCase) OpenArtifact(ctx context.Context, userID, artifactID string) (*entity.Artifact, []byte, error) {
	a, err := uc.artifacts.Get(ctx, userID, artifactID)
	if err != nil {
		return nil, nil, err
	}
	data, err := uc.blobs.Read(ctx, a.Handle)
	if err != nil {
		return nil, nil, err
	}
	return a, data, nil
}

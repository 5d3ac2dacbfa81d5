package entity

import "time"

// ArtifactKind 生成产物类型
type ArtifactKind string

const (
	ArtifactAudio ArtifactKind = "audio"
	ArtifactImage ArtifactKind = "image"
	ArtifactVideo ArtifactKind = "video"
)

// Artifact is a generated media file referenced by an opaque blob handle.
type Artifact struct {
	ID          string
	UserID      string
	ChatID      string
	PersonaID   string
	Kind        ArtifactKind
	Format      string // file extension including the dot, e.g. ".png"
	ContentType string
	Handle      string
	Provider    string
	CreatedAt   time.Time
}

// NewArtifact 创建产物记录
func NewArtifact(id, userID string, kind ArtifactKind, format, handle string, now time.Time) (*Artifact, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	switch kind {
	case ArtifactAudio, ArtifactImage, ArtifactVideo:
	default:
		return nil, ErrInvalidArtifactKind
	}
	if handle == "" {
		return nil, ErrMissingHandle
	}
	return &Artifact{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Format:    format,
		Handle:    handle,
		CreatedAt: now,
	}, nil
}

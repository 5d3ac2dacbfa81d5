package entity

import "errors"

var (
	// Chat errors
	ErrInvalidChatID     = errors.New("invalid chat id")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidMemoryMode = errors.New("invalid memory mode")

	// Message errors
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrEmptyText        = errors.New("text required")

	// Memory errors
	ErrInvalidMemoryTier = errors.New("invalid memory tier")
	ErrMissingTierRef    = errors.New("tier_ref_id is required for non-global memories")
	ErrEmptyMemory       = errors.New("memory content required")

	// Persona errors
	ErrInvalidPersonaID   = errors.New("invalid persona id")
	ErrInvalidPersonaName = errors.New("invalid persona name")

	// Artifact errors
	ErrInvalidArtifactKind = errors.New("invalid artifact kind")
	ErrMissingHandle       = errors.New("artifact storage handle required")
)

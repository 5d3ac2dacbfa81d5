package entity

import (
	"strings"
	"time"
)

// MemoryMode gates whether a chat reads and writes tiered memory.
type MemoryMode string

const (
	// MemoryModeAuto reads memories and writes new ones after each turn.
	MemoryModeAuto MemoryMode = "auto"
	// MemoryModeOn reads memories but never writes implicitly.
	MemoryModeOn MemoryMode = "on"
	// MemoryModeOff disables memory entirely for the chat.
	MemoryModeOff MemoryMode = "off"
)

// ParseMemoryMode returns the mode for s, and false when s is not a known mode.
func ParseMemoryMode(s string) (MemoryMode, bool) {
	switch MemoryMode(strings.ToLower(strings.TrimSpace(s))) {
	case MemoryModeAuto:
		return MemoryModeAuto, true
	case MemoryModeOn:
		return MemoryModeOn, true
	case MemoryModeOff:
		return MemoryModeOff, true
	}
	return "", false
}

// ReadsMemory reports whether memories are injected into the prompt.
func (m MemoryMode) ReadsMemory() bool {
	return m != MemoryModeOff
}

// Chat 会话实体
type Chat struct {
	ID            string
	UserID        string
	WorkspaceID   string
	PersonaID     string
	ModelOverride string
	MemoryMode    MemoryMode
	Title         string
	Hidden        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewChat 创建新会话
func NewChat(id, userID, title string, now time.Time) (*Chat, error) {
	if id == "" {
		return nil, ErrInvalidChatID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return &Chat{
		ID:         id,
		UserID:     userID,
		MemoryMode: MemoryModeAuto,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ChatDrift carries the per-turn overrides that stick to the chat after the turn.
// Empty fields leave the stored value unchanged.
type ChatDrift struct {
	WorkspaceID   string
	PersonaID     string
	ModelOverride string
	MemoryMode    MemoryMode
}

// ApplyTurn records a completed turn on the chat.
func (c *Chat) ApplyTurn(drift ChatDrift, at time.Time) {
	if drift.WorkspaceID != "" {
		c.WorkspaceID = drift.WorkspaceID
	}
	if drift.PersonaID != "" {
		c.PersonaID = drift.PersonaID
	}
	if drift.ModelOverride != "" {
		c.ModelOverride = drift.ModelOverride
	}
	if drift.MemoryMode != "" {
		c.MemoryMode = drift.MemoryMode
	}
	c.UpdatedAt = at
}

// TitleFromText derives a chat title from the first user message.
func TitleFromText(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if maxRunes > 0 && len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return text
}

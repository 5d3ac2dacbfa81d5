package entity

import "time"

// Workspace groups chats and personas for one user.
type Workspace struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

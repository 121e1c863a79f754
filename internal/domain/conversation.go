// Package domain contains core domain types for the chat widget.
package domain

import (
	"fmt"
	"time"
)

// Role identifies the author of a persisted message.
type Role string

const (
	// RoleUser marks a message typed by the chat user.
	RoleUser Role = "user"
	// RoleBot marks an assistant reply or a prototype result.
	RoleBot Role = "bot"
	// RoleSystem marks a status message such as "chat ended".
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot, RoleSystem:
		return true
	}
	return false
}

const (
	// MinSatisfaction is the lowest accepted satisfaction score.
	MinSatisfaction = 1
	// MaxSatisfaction is the highest accepted satisfaction score.
	MaxSatisfaction = 5
)

// Profile identifies the chat user.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Complete returns true if both name and email are present.
func (p *Profile) Complete() bool {
	return p != nil && p.Name != "" && p.Email != ""
}

// Conversation is the durable per-user session record.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Satisfaction *int      `json:"satisfaction,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a persisted transcript row.
type Message struct {
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Prototype is a generated prototype recorded by the prototype endpoint.
type Prototype struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Email      string    `json:"email"`
	PreviewURL string    `json:"preview_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidateSatisfaction checks that score is within the accepted range.
func ValidateSatisfaction(score int) error {
	if score < MinSatisfaction || score > MaxSatisfaction {
		return fmt.Errorf("satisfaction score %d out of range [%d, %d]", score, MinSatisfaction, MaxSatisfaction)
	}
	return nil
}

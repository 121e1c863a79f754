// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/chat-widget/internal/domain"
)

// Repository defines the interface for persisting conversations, messages,
// prototypes and device profiles. Lookups that find nothing return nil, nil.
type Repository interface {
	// LatestConversationByEmail returns the most recently created conversation for email.
	LatestConversationByEmail(ctx context.Context, email string) (*domain.Conversation, error)

	// CreateConversation inserts a new conversation for the profile.
	CreateConversation(ctx context.Context, name, email string) (*domain.Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// SetSatisfaction updates the satisfaction score of a conversation.
	SetSatisfaction(ctx context.Context, conversationID string, score int) error

	// AppendMessage inserts a transcript row.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns all messages of a conversation in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// CreatePrototype records a generated prototype.
	CreatePrototype(ctx context.Context, p *domain.Prototype) error

	// GetPrototype retrieves a prototype by ID.
	GetPrototype(ctx context.Context, id string) (*domain.Prototype, error)

	// LatestPrototypeByChatID returns the most recent prototype for a generator chat ID.
	LatestPrototypeByChatID(ctx context.Context, chatID string) (*domain.Prototype, error)

	// LatestPrototypeByPreview returns the most recent prototype matching email and preview URL.
	LatestPrototypeByPreview(ctx context.Context, email, previewURL string) (*domain.Prototype, error)

	// GetDeviceProfile retrieves the profile persisted for a device.
	GetDeviceProfile(ctx context.Context, deviceID string) (*domain.Profile, error)

	// UpsertDeviceProfile stores the profile for a device.
	UpsertDeviceProfile(ctx context.Context, deviceID string, profile domain.Profile) error

	// DeleteDeviceProfile removes the profile of a device.
	DeleteDeviceProfile(ctx context.Context, deviceID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

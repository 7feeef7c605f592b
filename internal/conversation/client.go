package conversation

import "context"

// Client sends one prompt to the conversation backend.
// The backend is authoritative for conversation ids: the id in the returned Reply may differ
// from the one supplied in SendOptions and is the one to use for the next turn.
type Client interface {
	SendMessage(ctx context.Context, text string, opts SendOptions) (*Reply, error)
}

// SendOptions tags a prompt with the conversation it belongs to.
type SendOptions struct {
	ConversationID string
}

// Reply is the backend's answer.
type Reply struct {
	Text           string
	ConversationID string
}

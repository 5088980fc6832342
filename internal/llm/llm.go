package llm

import (
	"context"
	"errors"
)

// Message is a single chat message sent to the model.
type Message struct {
	Role    string
	Content string
}

// Client abstracts chat-completion providers.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ErrUnavailable is returned when the provider cannot be reached or keeps
// failing after retries. Callers treat it as a transient outage.
var ErrUnavailable = errors.New("llm provider unavailable")

// System builds a system-role message.
func System(content string) Message {
	return Message{Role: "system", Content: content}
}

// User builds a user-role message.
func User(content string) Message {
	return Message{Role: "user", Content: content}
}

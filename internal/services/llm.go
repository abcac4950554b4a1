package services

import (
	"context"
	"fmt"

	"github.com/tavernkeep/gamemaster/pkg/chat"
)

// LLMService is the model transport boundary. Implementations own the
// provider wire format; callers see messages in, raw text out. It
// satisfies turn.Transport.
type LLMService interface {
	// InitModel prepares the model on startup.
	InitModel(ctx context.Context, modelName string) error

	// Chat sends the conversation and returns the model's raw text.
	Chat(ctx context.Context, messages []chat.ChatMessage) (string, error)
}

// TransportErrorKind classifies transport failures.
type TransportErrorKind string

const (
	TransportNetwork     TransportErrorKind = "network"
	TransportTimeout     TransportErrorKind = "timeout"
	TransportAuth        TransportErrorKind = "auth"
	TransportBadResponse TransportErrorKind = "bad_response"
)

// TransportError is a failure at the model transport boundary. The
// orchestrator retries these with bounded backoff.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

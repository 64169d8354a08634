// Package channels defines the transport boundary: an Adapter per chat
// platform that converts platform events into models.Message values and
// delivers outbound replies, plus a Registry that fans every adapter's
// inbound stream into one channel for the orchestrator to drain.
package channels

import (
	"context"

	"github.com/relaygrid/orchestrator/pkg/models"
)

// Adapter is one chat transport.
type Adapter interface {
	// Type identifies the platform this adapter serves.
	Type() models.ChannelType

	// Start connects and begins producing inbound messages. It returns
	// once the connection is established; delivery happens on background
	// goroutines until Stop or context cancellation.
	Start(ctx context.Context) error

	// Stop disconnects and closes the inbound stream.
	Stop(ctx context.Context) error

	// Messages is the adapter's inbound stream. Closed on Stop.
	Messages() <-chan *models.Message

	// Send delivers one outbound message.
	Send(ctx context.Context, msg *models.Message) error
}

// Reaction is an emoji reaction observed on a previously sent message, for
// transports that support them. MessageText carries the reacted-to message
// body so the caller can recover an approval request id embedded in it.
type Reaction struct {
	Channel     models.ChannelType
	ChatID      string
	MessageText string
	Names       []string
}

// ReactionSource is implemented by adapters that surface emoji reactions.
type ReactionSource interface {
	Reactions() <-chan Reaction
}

// Package transport implements the WebSocket attach endpoint and the HTTP
// surfaces (health, models, usage, metrics, env profiles) that sit in front
// of internal/session.Router.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus fans a raw frame out to every other peer attached to the same
// session, one watermill gochannel topic per session id. Grounded on
// telnet2-opencode's internal/event/bus.go, but used as an actual
// publish/subscribe transport (not just a typed in-process dispatcher)
// since peers attach and detach from goroutines with no shared call stack.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process broadcast bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
	}
}

// Publish broadcasts raw to every subscriber of sessionID except the one
// tagged with originPeerID (so a peer never echoes its own frame back to
// itself).
func (b *Bus) Publish(sessionID, originPeerID string, raw []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), raw)
	msg.Metadata.Set("origin", originPeerID)
	return b.pubsub.Publish(sessionID, msg)
}

// Subscribe returns the channel of frames published to sessionID, and a
// cancel func the caller must invoke on detach. Frames originating from
// peerID are filtered out before they reach the caller.
func (b *Bus) Subscribe(ctx context.Context, sessionID, peerID string) (<-chan []byte, context.CancelFunc) {
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := b.pubsub.Subscribe(subCtx, sessionID)
	out := make(chan []byte, 64)
	if err != nil {
		close(out)
		return out, cancel
	}

	go func() {
		defer close(out)
		for msg := range messages {
			if msg.Metadata.Get("origin") == peerID {
				msg.Ack()
				continue
			}
			select {
			case out <- msg.Payload:
			case <-subCtx.Done():
				msg.Ack()
				return
			}
			msg.Ack()
		}
	}()

	return out, cancel
}

// Close releases the underlying pub/sub infrastructure.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

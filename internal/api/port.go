package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/pubsub"
	"github.com/fluxbase-eu/playground/internal/session"
)

const publishTimeout = 2 * time.Second

// BroadcastPort keeps the fragment in memory and announces every write on
// pubsub.FragmentChannel so connected editors can update their address bar.
type BroadcastPort struct {
	*session.MemoryPort
	ps pubsub.PubSub
}

// NewBroadcastPort creates a port seeded with initial. ps may be nil.
func NewBroadcastPort(initial string, ps pubsub.PubSub) *BroadcastPort {
	return &BroadcastPort{
		MemoryPort: session.NewMemoryPort(initial),
		ps:         ps,
	}
}

// Write stores the fragment, then publishes it. A failed publish is logged
// and does not fail the write.
func (p *BroadcastPort) Write(fragment string) error {
	if err := p.MemoryPort.Write(fragment); err != nil {
		return err
	}
	if p.ps == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.ps.Publish(ctx, pubsub.FragmentChannel, []byte(fragment)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish fragment")
	}
	return nil
}

var _ session.Port = (*BroadcastPort)(nil)

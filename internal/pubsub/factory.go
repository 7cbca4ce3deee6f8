package pubsub

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// NewPubSub creates the pub/sub backend named by backend. Only the in-process
// backend exists: a playground session lives in exactly one process.
func NewPubSub(backend string, bufferSize int) (PubSub, error) {
	switch backend {
	case "local", "":
		log.Debug().Int("buffer_size", bufferSize).Msg("Using local pub/sub")
		return NewLocalPubSub(WithBufferSize(bufferSize)), nil
	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local)", backend)
	}
}

package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/pubsub"
)

func TestBroadcastPort_PublishesWrites(t *testing.T) {
	ps := pubsub.NewLocalPubSub()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := ps.Subscribe(ctx, pubsub.FragmentChannel)
	require.NoError(t, err)

	port := NewBroadcastPort("#seed", ps)

	got, err := port.Read()
	require.NoError(t, err)
	assert.Equal(t, "#seed", got)

	require.NoError(t, port.Write("#next"))

	select {
	case msg := <-ch:
		assert.Equal(t, pubsub.FragmentChannel, msg.Channel)
		assert.Equal(t, "#next", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("fragment was not published")
	}

	got, err = port.Read()
	require.NoError(t, err)
	assert.Equal(t, "#next", got)
	assert.Equal(t, 1, port.Writes())
}

func TestBroadcastPort_ClosedPubSubDoesNotFailWrite(t *testing.T) {
	ps := pubsub.NewLocalPubSub()
	require.NoError(t, ps.Close())

	port := NewBroadcastPort("", ps)
	assert.NoError(t, port.Write("#x"))

	got, _ := port.Read()
	assert.Equal(t, "#x", got)
}

func TestBroadcastPort_NilPubSub(t *testing.T) {
	port := NewBroadcastPort("", nil)
	assert.NoError(t, port.Write("#x"))
	assert.Equal(t, 1, port.Writes())
}

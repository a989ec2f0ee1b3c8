package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, msg Message, pc *ProcessingContext) (any, error) {
		return nil, nil
	})
}

func TestRegistry_SingleHandlerPerCommand(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCommand("orders.create", noopHandler()))

	err := r.RegisterCommand("orders.create", noopHandler())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerAlreadyRegistered)

	_, ok := r.CommandHandler("orders.create")
	assert.True(t, ok)
	_, ok = r.CommandHandler("orders.delete")
	assert.False(t, ok)
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.RegisterCommand("", noopHandler()), ErrEmptyMessageType)
	assert.ErrorIs(t, r.RegisterQuery("q", nil), ErrNilHandler)

	_, err := r.RegisterEvent("", noopHandler())
	assert.ErrorIs(t, err, ErrEmptyMessageType)
	_, err = r.RegisterEvent("e", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestRegistry_MultipleEventHandlers(t *testing.T) {
	r := NewRegistry()

	_, err := r.RegisterEvent("orders.created", noopHandler())
	require.NoError(t, err)
	_, err = r.RegisterEvent("orders.created", noopHandler())
	require.NoError(t, err)

	assert.Len(t, r.EventHandlers("orders.created"), 2)
	assert.Nil(t, r.EventHandlers("orders.deleted"))
}

func TestRegistry_SameFuncHandlerSubscribesTwice(t *testing.T) {
	r := NewRegistry()
	h := noopHandler()

	sub1, err := r.RegisterEvent("orders.created", h)
	require.NoError(t, err)
	sub2, err := r.RegisterEvent("orders.created", h)
	require.NoError(t, err)

	assert.NotEqual(t, sub1, sub2)
	assert.Len(t, r.EventHandlers("orders.created"), 2)
}

func TestRegistry_RemoveEvent(t *testing.T) {
	r := NewRegistry()

	sub1, err := r.RegisterEvent("orders.created", noopHandler())
	require.NoError(t, err)
	sub2, err := r.RegisterEvent("orders.created", noopHandler())
	require.NoError(t, err)

	r.RemoveEvent("orders.created", sub1)
	assert.Len(t, r.EventHandlers("orders.created"), 1)

	// Removing an unknown subscription is a no-op.
	r.RemoveEvent("orders.created", sub1)
	assert.Len(t, r.EventHandlers("orders.created"), 1)

	r.RemoveEvent("orders.created", sub2)
	assert.Nil(t, r.EventHandlers("orders.created"))
}

func TestRegistry_HandlersSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterEvent("orders.created", noopHandler())
	require.NoError(t, err)

	snapshot := r.EventHandlers("orders.created")
	snapshot[0].Handler = nil

	assert.NotNil(t, r.EventHandlers("orders.created")[0].Handler)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCommand("c", noopHandler()))
	require.NoError(t, r.RegisterQuery("q", noopHandler()))
	_, err := r.RegisterEvent("e", noopHandler())
	require.NoError(t, err)

	r.Clear()

	_, ok := r.CommandHandler("c")
	assert.False(t, ok)
	_, ok = r.QueryHandler("q")
	assert.False(t, ok)
	assert.Nil(t, r.EventHandlers("e"))
}

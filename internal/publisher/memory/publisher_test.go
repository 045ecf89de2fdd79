package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jfaulkner/crm-bridge/internal/events"
)

func TestPublishRecordsEvents(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), events.Event{
		Type:    "order.created",
		Payload: json.RawMessage(`{"orderId":"o-1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	published := p.Events()
	require.Len(t, published, 1)
	require.Equal(t, "order.created", published[0].Type)
}

package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squares/outbox"
)

func TestToastFor_StatusChanged(t *testing.T) {
	toast, err := ToastFor(outbox.Message{
		ID:      "m1",
		Topic:   "property.status_changed",
		Payload: []byte(`{"property_id":"p1","title":"Harbor Flat","previous":"available","next":"rented","is_revert":false}`),
	})
	require.NoError(t, err)
	assert.Equal(t, LevelSuccess, toast.Level)
	assert.Equal(t, "Harbor Flat marked as Rented", toast.Message)
	assert.Equal(t, "p1", toast.PropertyID)

	toast, err = ToastFor(outbox.Message{
		Topic:   "property.status_changed",
		Payload: []byte(`{"property_id":"p1","previous":"rented","next":"available","is_revert":true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Property is Available again", toast.Message)
}

func TestToastFor_Moderated(t *testing.T) {
	toast, err := ToastFor(outbox.Message{
		Topic:   "property.moderated",
		Payload: []byte(`{"property_id":"p9","title":"Barn","decision":"reject","reason":"duplicate listing"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, LevelWarning, toast.Level)
	assert.Equal(t, "Barn was rejected: duplicate listing", toast.Message)
}

func TestOutboxPublisher_UnknownTopic(t *testing.T) {
	var got []Toast
	pub := NewOutboxPublisher(SinkFunc(func(_ context.Context, t Toast) { got = append(got, t) }))

	err := pub.Publish(context.Background(), outbox.Message{Topic: "listing.archived", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownTopic)

	err = pub.Publish(context.Background(), outbox.Message{Topic: "property.status_changed", Payload: []byte(`not json`)})
	assert.Error(t, err)
	assert.Empty(t, got)

	require.NoError(t, pub.Publish(context.Background(), outbox.Message{
		Topic:   "property.moderated",
		Payload: []byte(`{"property_id":"p2","title":"Loft","decision":"approve"}`),
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "Loft is now available", got[0].Message)
}

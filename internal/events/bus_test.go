package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishOrderAndUnsubscribe(t *testing.T) {
	b := NewBus()
	b.Now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	var first, second []Event
	cancel := b.Subscribe(func(e Event) { first = append(first, e) })
	b.Subscribe(func(e Event) { second = append(second, e) })

	b.Publish(JobAdded, "job", 7, EventPayload{"titulo": "Go"})
	cancel()
	b.Publish(DataLoaded, "", 0, nil)

	require.Len(t, first, 1)
	require.Len(t, second, 2)
	assert.Equal(t, uint64(1), first[0].Seq)
	assert.Equal(t, "2024-05-01T10:00:00Z", first[0].TS)
	assert.Equal(t, int64(7), first[0].EntityID)
	assert.Equal(t, uint64(2), second[1].Seq)
	assert.NotNil(t, second[1].Payload)
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish(StoreReset, "", 0, nil) })
}

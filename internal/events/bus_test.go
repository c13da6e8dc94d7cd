package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	received := make(chan Event, 10)
	n := bus.Subscribe(AccountDirty, func(event *Event) {
		received <- *event
	})
	assert.Equal(t, 1, n)

	bus.Publish(&AccountDirtyData{AccountID: 42, Reason: "transaction"})

	select {
	case event := <-received:
		assert.Equal(t, AccountDirty, event.Type)
		data, ok := event.Data.(*AccountDirtyData)
		require.True(t, ok)
		assert.Equal(t, int64(42), data.AccountID)
		assert.Equal(t, "transaction", data.Reason)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	done := make(chan struct{})
	go func() {
		bus.Publish(&PricesUpdatedData{AssetsUpdated: 3, AsOf: "2024-01-15"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	bus.Subscribe(SnapshotCompleted, func(event *Event) { first <- *event })
	bus.Subscribe(SnapshotCompleted, func(event *Event) { second <- *event })

	bus.Publish(&SnapshotCompletedData{Accounts: 2, Day: "2024-01-15"})

	for _, ch := range []chan Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, SnapshotCompleted, event.Type)
		case <-time.After(time.Second):
			t.Fatal("not all subscribers received the event")
		}
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	received := make(chan Event, 1)
	bus.Subscribe(AccountDirty, func(event *Event) { panic("boom") })
	bus.Subscribe(AccountDirty, func(event *Event) { received <- *event })

	bus.Publish(&AccountDirtyData{AccountID: 1})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("healthy handler did not receive the event")
	}
}

func TestBus_SubscriberOnlyReceivesItsType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	received := make(chan Event, 10)
	bus.Subscribe(PricesUpdated, func(event *Event) { received <- *event })

	bus.Publish(&AccountDirtyData{AccountID: 7})

	select {
	case event := <-received:
		t.Fatalf("received unexpected event type %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

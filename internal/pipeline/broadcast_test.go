package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cangyeone/seismox-system/internal/db"
)

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	pb := NewPickBroadcaster()
	id1, ch1 := pb.Subscribe()
	id2, ch2 := pb.Subscribe()
	defer pb.Unsubscribe(id1)
	defer pb.Unsubscribe(id2)

	picks := []db.PhasePick{{StationID: 1, PhaseType: "Pg"}}
	pb.Publish(picks)

	assert.Len(t, <-ch1, 1)
	assert.Len(t, <-ch2, 1)
}

func TestSubscriberIDsAreDistinct(t *testing.T) {
	pb := NewPickBroadcaster()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := pb.Subscribe()
		require.NotEmpty(t, id)
		require.NotEqual(t, "0000000000000000", id)
		require.False(t, seen[id], "duplicate subscriber id %s", id)
		seen[id] = true
	}
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	pb := NewPickBroadcaster()
	id, ch := pb.Subscribe()
	defer pb.Unsubscribe(id)

	picks := []db.PhasePick{{StationID: 1, PhaseType: "Pg"}}

	// Fill the subscriber's buffer and keep publishing; Publish must never
	// block even though nothing is draining the channel.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			pb.Publish(picks)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, 8)
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	pb := NewPickBroadcaster()
	id, ch := pb.Subscribe()
	pb.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after churn must not panic or deliver.
	pb.Publish([]db.PhasePick{{StationID: 1}})
}

func TestBroadcasterIgnoresEmptyBatch(t *testing.T) {
	pb := NewPickBroadcaster()
	id, ch := pb.Subscribe()
	defer pb.Unsubscribe(id)

	pb.Publish(nil)
	require.Len(t, ch, 0)
}

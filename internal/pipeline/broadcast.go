package pipeline

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
)

// PickBroadcaster fans freshly associated pick batches out to visualization
// subscribers. Delivery is at-most-once with no persistence: a subscriber
// whose channel is full simply misses the batch, and no subscriber can
// block or crash the pipeline worker.
type PickBroadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan []db.PhasePick
}

func NewPickBroadcaster() *PickBroadcaster {
	return &PickBroadcaster{subscribers: make(map[string]chan []db.PhasePick)}
}

// randomID generates a random subscriber ID (8 byte random hex encoded
// value). If the system randomness source is unavailable the ID falls back
// to the current nanosecond clock rather than an all-zero value.
func randomID() string {
	b := make([]byte, 8)
	if _, err := crand.Read(b); err != nil {
		binary.BigEndian.PutUint64(b, uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b)
}

// Subscribe registers a new listener and returns its ID and channel.
func (pb *PickBroadcaster) Subscribe() (string, <-chan []db.PhasePick) {
	id := randomID()
	ch := make(chan []db.PhasePick, 8)
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (pb *PickBroadcaster) Unsubscribe(id string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if ch, ok := pb.subscribers[id]; ok {
		close(ch)
		delete(pb.subscribers, id)
	}
}

// Publish delivers a batch to every subscriber that has room.
func (pb *PickBroadcaster) Publish(picks []db.PhasePick) {
	if len(picks) == 0 {
		return
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	for _, ch := range pb.subscribers {
		select {
		case ch <- picks:
		default:
			// slow subscriber; drop rather than stall the worker
		}
	}
}

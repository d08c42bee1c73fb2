// Package stream connects a blocking SeedLink-style streaming client to the
// asynchronous processing pipeline. The client produces decoded traces; the
// bridge owns its lifecycle and relays traces into the worker queue.
package stream

import (
	"context"
	"time"
)

// Trace is one continuous decoded segment of sensor data delivered by the
// streaming source, along with the raw record bytes it was decoded from.
type Trace struct {
	Network      string
	Station      string
	Location     string
	Channel      string
	StartTime    time.Time
	SamplingRate float64
	Samples      []float64
	Raw          []byte
}

// Selector identifies the stream to subscribe to.
type Selector struct {
	Network  string `json:"network"`
	Station  string `json:"station"`
	Location string `json:"location"`
	Channel  string `json:"channel"`
}

// DefaultSelector is the stream subscribed to when a start request names
// nothing else.
var DefaultSelector = Selector{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}

// TraceHandler receives each decoded trace. Handlers run on the client's
// own goroutine and must not block indefinitely.
type TraceHandler func(Trace)

// Client is a long-lived streaming source. Run blocks until the stream
// ends, the context is cancelled, or Close is called.
type Client interface {
	Run(ctx context.Context, onTrace TraceHandler) error
	Close() error
}

// ClientFactory builds a client for a selector. The bridge takes a factory
// so tests can substitute a fake source.
type ClientFactory func(Selector) Client

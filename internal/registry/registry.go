// Package registry holds the process-wide view of published streams and
// live RTSP connections, and fans out published frames to subscribers.
//
// Grounded on RtspClientsMap.cpp's global all_camera_streams/
// rtsp_client_tcp_connections pair, translated from module-level C++
// globals into an explicit struct: construct with New, guard all state
// with one mutex.
package registry

import (
	"sync"

	"github.com/mcm001/v4l2-hevc-meme/internal/metrics"
)

// StreamDescriptor is the last-known metadata for a published stream.
type StreamDescriptor struct {
	Name   string
	Width  int
	Height int
	FPS    int
}

// Image is one raw frame handed to PublishFrame: 24-bit packed BGR,
// stride = width*3 unless the producer packs rows with padding.
type Image struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Subscriber is the fan-out target of a Publish call: a live Connection
// that may or may not currently be playing the named stream. Publish calls
// Offer after releasing its own mutex, so Offer may block (e.g. on
// synchronous encoding) without stalling other registry operations; it
// must guard its own mutable state itself.
type Subscriber interface {
	ID() string
	Offer(img Image) bool
}

// Registry is the process-wide stream table and connection registry.
// Safe for concurrent use from any goroutine.
type Registry struct {
	mu sync.Mutex

	streams map[string]StreamDescriptor

	// connections preserves accept order; index maps each connection ID
	// to its position in connections.
	connections []Subscriber
	index       map[string]int

	// subscriptions maps stream name to the set of connection IDs
	// currently SetUp/Playing against it. Multiple connections may play
	// the same stream name concurrently.
	subscriptions map[string]map[string]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		streams:       make(map[string]StreamDescriptor),
		index:         make(map[string]int),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// Register adds a newly accepted connection. Called once per TCP accept.
func (r *Registry) Register(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index[s.ID()] = len(r.connections)
	r.connections = append(r.connections, s)
}

// Unregister removes a connection on socket close/end/error, and drops any
// stream subscription it held.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeConnection(id)
	for name, ids := range r.subscriptions {
		if _, ok := ids[id]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.subscriptions, name)
			}
		}
	}
}

func (r *Registry) removeConnection(id string) {
	i, ok := r.index[id]
	if !ok {
		return
	}
	r.connections = append(r.connections[:i], r.connections[i+1:]...)
	for j := i; j < len(r.connections); j++ {
		r.index[r.connections[j].ID()] = j
	}
	delete(r.index, id)
}

// Subscribe marks a connection as a fan-out target for streamName. Called
// when a Connection's Egress Pipeline becomes active (SETUP).
func (r *Registry) Subscribe(s Subscriber, streamName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.subscriptions[streamName]
	if !ok {
		ids = make(map[string]struct{})
		r.subscriptions[streamName] = ids
	}
	ids[s.ID()] = struct{}{}
}

// Unsubscribe stops fanning streamName to s (TEARDOWN, or pipeline
// destruction on socket close).
func (r *Registry) Unsubscribe(s Subscriber, streamName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ids, ok := r.subscriptions[streamName]; ok {
		delete(ids, s.ID())
		if len(ids) == 0 {
			delete(r.subscriptions, streamName)
		}
	}
}

// Lookup returns the last-published descriptor for name, used by SETUP.
func (r *Registry) Lookup(name string) (StreamDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.streams[name]
	return d, ok
}

// ConnectionCount returns the number of live connections, for metrics.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// Publish updates the stream descriptor for name and offers img to every
// subscribed connection. Returns true if at least one subscriber accepted
// the frame. Safe to call from any goroutine, including a frame producer
// unrelated to the event loop goroutine running the listener.
func (r *Registry) Publish(name string, img Image) bool {
	r.mu.Lock()
	r.streams[name] = StreamDescriptor{
		Name:   name,
		Width:  img.Width,
		Height: img.Height,
		FPS:    30,
	}
	ids := r.subscriptions[name]
	targets := make([]Subscriber, 0, len(ids))
	for id := range ids {
		i, ok := r.index[id]
		if ok {
			targets = append(targets, r.connections[i])
		}
	}
	r.mu.Unlock()

	metrics.FramesPublished.WithLabelValues(name).Inc()

	accepted := false
	for _, s := range targets {
		if s.Offer(img) {
			accepted = true
		}
	}
	if !accepted {
		metrics.FramesDropped.WithLabelValues(name).Inc()
	}
	return accepted
}

// Package sse streams intelligence graph changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/nexus/internal/models"
)

// Event types emitted by the broker.
const (
	TypeDocumentProcessed = "document.processed"
	TypeDocumentDeleted   = "document.deleted"
	TypeLinkCreated       = "link.created"
	TypeGraphUpdated      = "graph.updated"
)

// Event is a single SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DocumentEvent is the payload of document.* events.
type DocumentEvent struct {
	ID         string `json:"id"`
	Filename   string `json:"filename,omitempty"`
	Department string `json:"department,omitempty"`
}

// LinkEvent is the payload of link.created.
type LinkEvent struct {
	ID               string `json:"id"`
	SourceID         string `json:"source_id"`
	TargetID         string `json:"target_id"`
	RelationshipType string `json:"relationship_type"`
}

// DefaultReplay is how many recent events a broker keeps for reconnecting clients.
const DefaultReplay = 128

const clientBuffer = 64

// Filter selects what a subscriber receives.
type Filter struct {
	// Types limits delivery to these event types; empty means all.
	Types []string
	// LastEventID replays retained events with a greater ID before live ones.
	LastEventID uint64
}

// Subscription is one client's event feed. C is closed when the
// subscription ends or the broker stops.
type Subscription struct {
	C <-chan []byte

	ch    chan []byte
	types map[string]struct{}
	after uint64
}

func (s *Subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

type frame struct {
	id   uint64
	typ  string
	wire []byte
}

// Broker fans events out to connected clients.
//
// One goroutine owns the subscriber set, the event sequence, the replay
// history and the graph.updated throttle; public methods reach it over channels.
type Broker struct {
	graphMin  time.Duration
	keepAlive time.Duration
	replay    int

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	graphCh       chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sends an SSE comment line to idle clients every d. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithReplay sets how many recent events are retained for Last-Event-ID
// replay. Zero disables replay.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

// NewBroker starts a broker. graph.updated is emitted at most once per graphThrottle.
func NewBroker(graphThrottle time.Duration, opts ...Option) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		replay:        DefaultReplay,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		graphCh:       make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func encode(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[*Subscription]struct{})
	history := make([]frame, 0, b.replay)
	var seq uint64
	var lastGraph time.Time

	deliver := func(sub *Subscription, f frame) {
		if f.id <= sub.after || !sub.wants(f.typ) {
			return
		}
		select {
		case sub.ch <- f.wire:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}

	broadcast := func(event Event) {
		wire, err := encode(seq+1, event)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, typ: event.Type, wire: wire}
		if b.replay > 0 {
			if len(history) == b.replay {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, f)
		}
		for sub := range subs {
			deliver(sub, f)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for sub := range subs {
				close(sub.ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.after > 0 {
				for _, f := range history {
					deliver(sub, f)
				}
			}
			// Replay is done; live events are filtered by type only.
			sub.after = 0
			subs[sub] = struct{}{}

		case sub := <-b.unsubscribeCh:
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.graphCh:
			broadcast(event)
			if now := time.Now(); now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				broadcast(Event{Type: TypeGraphUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the loop and ends every subscription. Safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Retained events newer than
// f.LastEventID are queued first.
func (b *Broker) Subscribe(f Filter) *Subscription {
	ch := make(chan []byte, clientBuffer+b.replay)
	sub := &Subscription{C: ch, ch: ch, after: f.LastEventID}
	for _, t := range f.Types {
		if t = strings.TrimSpace(t); t != "" {
			if sub.types == nil {
				sub.types = make(map[string]struct{})
			}
			sub.types[t] = struct{}{}
		}
	}
	if b.closed.Load() {
		close(ch)
		return sub
	}
	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(ch)
	}
	return sub
}

// Unsubscribe ends sub and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- sub:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// publishGraph broadcasts event and a throttled graph.updated notice.
func (b *Broker) publishGraph(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.graphCh <- event:
	case <-b.stopped:
	}
}

// PublishDocumentEvent announces a processed document.
func (b *Broker) PublishDocumentEvent(doc models.Document) {
	b.publishGraph(Event{Type: TypeDocumentProcessed, Data: DocumentEvent{
		ID:         doc.ID.String(),
		Filename:   doc.Filename,
		Department: string(doc.Department),
	}})
}

// PublishDocumentDeleted announces a removed document.
func (b *Broker) PublishDocumentDeleted(id models.EntityID) {
	b.Publish(Event{Type: TypeDocumentDeleted, Data: DocumentEvent{ID: id.String()}})
}

// PublishLinkEvent announces a created link followed by a throttled graph.updated.
func (b *Broker) PublishLinkEvent(l models.Link) {
	b.publishGraph(Event{Type: TypeLinkCreated, Data: LinkEvent{
		ID:               l.ID.String(),
		SourceID:         l.SourceID.String(),
		TargetID:         l.TargetID.String(),
		RelationshipType: l.RelationshipType,
	}})
}

// requestFilter reads ?types=a,b and the Last-Event-ID header, falling back
// to ?last_event_id= for clients that reconnect by hand.
func requestFilter(r *http.Request) Filter {
	var f Filter
	if types := r.URL.Query().Get("types"); types != "" {
		f.Types = strings.Split(types, ",")
	}
	last := r.Header.Get("Last-Event-ID")
	if last == "" {
		last = r.URL.Query().Get("last_event_id")
	}
	if id, err := strconv.ParseUint(strings.TrimSpace(last), 10, 64); err == nil {
		f.LastEventID = id
	}
	return f
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	sub := b.Subscribe(requestFilter(r))
	defer b.Unsubscribe(sub)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

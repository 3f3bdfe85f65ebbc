// Package sse streams catalog changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/shelf/internal/models"
)

// Event names sent on the stream.
const (
	TypeBookAdded       = "book.added"
	TypeBookRemoved     = "book.removed"
	TypeBookUpdated     = "book.updated"
	TypeCatalogReloaded = "catalog.reloaded"
	TypeStatsUpdated    = "stats.updated"
)

// Types lists every event name a client may filter on.
var Types = []string{TypeBookAdded, TypeBookRemoved, TypeBookUpdated, TypeCatalogReloaded, TypeStatsUpdated}

// kindTypes maps catalog change kinds onto event names.
var kindTypes = map[string]string{
	"added":    TypeBookAdded,
	"removed":  TypeBookRemoved,
	"updated":  TypeBookUpdated,
	"reloaded": TypeCatalogReloaded,
}

// Event is one message for subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// filter is the set of event names a subscriber wants; nil means all.
type filter map[string]struct{}

func (f filter) wants(typ string) bool {
	if f == nil {
		return true
	}
	_, ok := f[typ]
	return ok
}

type subscription struct {
	ch     chan []byte
	filter filter
}

// Broker fans events out to subscribers.
//
// One goroutine owns the subscriber set, the sequence counter and the stats
// throttle. Public methods talk to it over channels.
type Broker struct {
	statsMin  time.Duration
	heartbeat time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets how often idle streams get a keep-alive comment.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker starts a broker that emits at most one stats.updated per
// statsThrottle.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}

	b := &Broker{
		statsMin:      statsThrottle,
		heartbeat:     30 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
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

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan []byte]filter)
	var (
		seq       uint64
		lastStats time.Time
	)

	send := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)

		for ch, f := range subs {
			if !f.wants(event.Type) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall everyone else.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event)
			if _, isCatalog := kindTypeSet[event.Type]; !isCatalog {
				continue
			}
			if now := time.Now(); now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				send(Event{Type: TypeStatsUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

var kindTypeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(kindTypes))
	for _, t := range kindTypes {
		m[t] = struct{}{}
	}
	return m
}()

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for the given event names, or for all events
// when none are given.
func (b *Broker) Subscribe(types ...string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = struct{}{}
		}
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, filter: f}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
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

// Publish sends an event to matching subscribers. Book and catalog events
// are followed by a throttled stats.updated.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBookEvent publishes a catalog change of the given kind (added,
// removed, updated, reloaded). Added and updated events carry the book;
// removed carries its id and title. Unknown kinds are dropped.
func (b *Broker) PublishBookEvent(kind string, book models.Book) {
	typ, ok := kindTypes[kind]
	if !ok {
		return
	}
	var data any
	switch typ {
	case TypeBookAdded, TypeBookUpdated:
		data = book
	case TypeBookRemoved:
		data = map[string]string{"id": book.ID, "title": book.Title}
	default:
		data = struct{}{}
	}
	b.Publish(Event{Type: typ, Data: data})
}

// ParseTypes validates a comma-separated list of event names. An empty list
// means all events.
func ParseTypes(s string) ([]string, error) {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !slices.Contains(Types, t) {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		out = append(out, t)
	}
	return out, nil
}

// ServeHTTP is the SSE endpoint (GET /api/events). The optional "types"
// query parameter restricts the stream, e.g. ?types=book.added,book.removed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, err := ParseTypes(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams are long-lived; lift the server write deadline for this response.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ch := b.Subscribe(types...)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

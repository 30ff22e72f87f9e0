// Package peerevent provides a bounded-channel event bus that a
// PeerEndpoint emits into and the embedding application drains, replacing
// an observer/callback table with a single consumable stream.
package peerevent

// Kind identifies the signal an Event carries.
type Kind int

const (
	KindPeerConnecting Kind = iota
	KindPeerConnected
	KindPeerDisconnected
	KindTypingReceived
	KindReadReceiptReceived
	KindMessageReceived
)

func (k Kind) String() string {
	switch k {
	case KindPeerConnecting:
		return "PeerConnecting"
	case KindPeerConnected:
		return "PeerConnected"
	case KindPeerDisconnected:
		return "PeerDisconnected"
	case KindTypingReceived:
		return "TypingReceived"
	case KindReadReceiptReceived:
		return "ReadReceiptReceived"
	case KindMessageReceived:
		return "MessageReceived"
	default:
		return "Unknown"
	}
}

// Event is one signal emitted by a PeerEndpoint. Text is populated only
// for KindMessageReceived. Err is populated only for KindPeerDisconnected
// when the disconnect was caused by a failure rather than a clean local
// shutdown.
type Event struct {
	Kind Kind
	Text string
	Err  error
}

// defaultCapacity bounds the bus so a slow or absent consumer cannot make
// the endpoint's dispatch loop block indefinitely on event emission; once
// full, the oldest unread event is dropped in favor of the new one.
const defaultCapacity = 32

// Bus is a single-consumer, many-signal event channel. The zero value is
// not usable; construct with New.
type Bus struct {
	events chan Event
}

// New creates a Bus with the default bounded capacity.
func New() *Bus {
	return &Bus{events: make(chan Event, defaultCapacity)}
}

// Events returns the channel the application should range over to drain
// signals. It is closed by Close.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// emit delivers ev, dropping the oldest queued event instead of blocking
// if the channel is full.
func (b *Bus) emit(ev Event) {
	for {
		select {
		case b.events <- ev:
			return
		default:
		}
		select {
		case <-b.events:
		default:
			return
		}
	}
}

func (b *Bus) PeerConnecting() { b.emit(Event{Kind: KindPeerConnecting}) }
func (b *Bus) PeerConnected()  { b.emit(Event{Kind: KindPeerConnected}) }

func (b *Bus) PeerDisconnected(err error) {
	b.emit(Event{Kind: KindPeerDisconnected, Err: err})
}

func (b *Bus) TypingReceived()      { b.emit(Event{Kind: KindTypingReceived}) }
func (b *Bus) ReadReceiptReceived() { b.emit(Event{Kind: KindReadReceiptReceived}) }

func (b *Bus) MessageReceived(text string) {
	b.emit(Event{Kind: KindMessageReceived, Text: text})
}

// Close closes the underlying channel. The application's drain loop
// should exit when it observes the channel closed. Safe to call once.
func (b *Bus) Close() {
	close(b.events)
}

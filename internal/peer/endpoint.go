// Package peer implements PeerEndpoint, the connection state machine that
// drives the mutual-acknowledgement handshake, the receive-dispatch loop,
// and application sends for both the listener (hidden-service side) and
// connector (SOCKS5-client side) roles.
package peer

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"torchat/internal/crypto"
	"torchat/internal/logging"
	"torchat/internal/peerevent"
	"torchat/internal/protocol"
	"torchat/internal/torchaterr"
)

// Role distinguishes which side of the handshake an endpoint plays.
type Role int

const (
	RoleListener Role = iota
	RoleConnector
)

func (r Role) String() string {
	if r == RoleListener {
		return "listener"
	}
	return "connector"
}

// Phase is the endpoint's lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDialing
	PhaseHandshaking
	PhaseLive
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDialing:
		return "dialing"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseLive:
		return "live"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HandshakeTimeout bounds the entire handshake, from the first frame sent
// or received to the last. A var, not a const, so tests can shrink it.
var HandshakeTimeout = 60 * time.Second

// OnMessage is invoked once per delivered EncryptedMessage, after which
// the endpoint automatically sends a ReadReceipt.
type OnMessage func(text string)

// session bundles everything a single live connection owns: the frame
// stream, the bound protocol+crypto session, a generation id used to
// detect replacement, and a serializing send mutex.
type session struct {
	generation uint64
	stream     protocol.Stream
	proto      *protocol.Session
	sendMu     sync.Mutex
}

// Endpoint is a PeerEndpoint: one role, one at-most-one-live-session
// connection state machine, with an event bus the embedding application
// drains for signals and a message callback for delivered text.
type Endpoint struct {
	role   Role
	logger *slog.Logger
	bus    *peerevent.Bus
	onMsg  OnMessage

	mu        sync.Mutex
	current   *session
	generator atomic.Uint64

	phase atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func newEndpoint(role Role, logger *slog.Logger, onMsg OnMessage) *Endpoint {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		role:   role,
		logger: logger,
		bus:    peerevent.New(),
		onMsg:  onMsg,
		ctx:    ctx,
		cancel: cancel,
	}
	e.phase.Store(int32(PhaseIdle))
	return e
}

// Events returns the channel the application drains for connection and
// message signals.
func (e *Endpoint) Events() <-chan peerevent.Event {
	return e.bus.Events()
}

// Phase reports the endpoint's current lifecycle state.
func (e *Endpoint) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Endpoint) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

// adopt installs sess as the endpoint's current session, tearing down any
// previous session first. It implements the at-most-one-live-session
// replacement rule: the old session's dispatch loop will observe its
// generation no longer matches e.current and exit quietly.
func (e *Endpoint) adopt(sess *session) {
	e.mu.Lock()
	old := e.current
	e.current = sess
	e.mu.Unlock()

	if old != nil {
		old.proto.Close()
	}
}

// isCurrent reports whether generation still identifies the endpoint's
// live session, used by a terminating dispatch loop to decide whether it
// still owns disconnection reporting.
func (e *Endpoint) isCurrent(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.generation == generation
}

// clearIfCurrent removes the session from e.current if it is still the
// active one, returning true if it did so.
func (e *Endpoint) clearIfCurrent(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.generation == generation {
		e.current = nil
		return true
	}
	return false
}

// runHandshake performs the 4-step mutual-ack handshake for the given
// role over proto, honoring the handshake deadline linked to ctx.
func runHandshake(ctx context.Context, role Role, proto *protocol.Session) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if role == RoleListener {
			done <- listenerHandshake(proto)
		} else {
			done <- connectorHandshake(proto)
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return torchaterr.New(torchaterr.KindTimeout, "handshake deadline exceeded")
	}
}

// listenerHandshake: send-KE -> receive-KE -> send-ACK -> receive-ACK.
func listenerHandshake(proto *protocol.Session) error {
	if err := proto.SendKeyExchange(); err != nil {
		return err
	}
	if err := expectKind(proto, protocol.KindKeyExchange); err != nil {
		return err
	}
	if err := proto.SendAck(); err != nil {
		return err
	}
	return expectKind(proto, protocol.KindConnectionAck)
}

// connectorHandshake: receive-KE -> send-KE -> receive-ACK -> send-ACK.
func connectorHandshake(proto *protocol.Session) error {
	if err := expectKind(proto, protocol.KindKeyExchange); err != nil {
		return err
	}
	if err := proto.SendKeyExchange(); err != nil {
		return err
	}
	if err := expectKind(proto, protocol.KindConnectionAck); err != nil {
		return err
	}
	return proto.SendAck()
}

func expectKind(proto *protocol.Session, want byte) error {
	ev, err := proto.Receive()
	if err != nil {
		return err
	}
	if ev.Kind != want {
		return torchaterr.New(torchaterr.KindProtocolError, "unexpected frame kind during handshake")
	}
	return nil
}

// dispatch runs the receive loop for one live session until it
// terminates, then fires peer-disconnected only if it still owns the
// endpoint's current session.
func (e *Endpoint) dispatch(sess *session) {
	defer e.wg.Done()

	var dispatchErr error
	var lastKind byte
loop:
	for {
		select {
		case <-e.ctx.Done():
			dispatchErr = torchaterr.New(torchaterr.KindCancelled, "endpoint stopped")
			break loop
		default:
		}

		ev, err := sess.proto.Receive()
		if err != nil {
			dispatchErr = err
			break loop
		}
		lastKind = ev.Kind

		switch ev.Kind {
		case protocol.KindEncryptedMessage:
			if e.onMsg != nil {
				e.onMsg(ev.Text)
			}
			e.bus.MessageReceived(ev.Text)
			if err := e.sendOn(sess, func() error { return sess.proto.SendReadReceipt() }); err != nil {
				dispatchErr = err
				break loop
			}
		case protocol.KindTypingIndicator:
			e.bus.TypingReceived()
		case protocol.KindReadReceipt:
			e.bus.ReadReceiptReceived()
		default:
			dispatchErr = torchaterr.New(torchaterr.KindProtocolError, "unexpected frame kind in live session")
			break loop
		}
	}

	if !e.clearIfCurrent(sess.generation) {
		// A newer session has already replaced this one; it already
		// tore this session down in adopt(), and the replacement's own
		// lifecycle owns disconnect reporting.
		sess.proto.Close()
		return
	}

	sess.proto.Close()

	if torchaterr.Is(dispatchErr, torchaterr.KindCancelled) {
		return
	}

	e.logger.Warn("dispatch loop exited",
		logging.KeyComponent, "peer.endpoint",
		logging.KeyRole, e.role.String(),
		logging.KeyPhase, e.Phase().String(),
		logging.KeyFrameKind, protocol.FrameName(lastKind),
		logging.KeyError, dispatchErr.Error())

	e.bus.PeerDisconnected(dispatchErr)
}

// sendOn runs fn under sess's send mutex, serializing frame writes per
// session as required by the at-most-one-frame-in-flight rule.
func (e *Endpoint) sendOn(sess *session, fn func() error) error {
	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()
	return fn()
}

// liveSession returns the current session if the endpoint is Live,
// otherwise NotConnected.
func (e *Endpoint) liveSession() (*session, error) {
	if e.Phase() != PhaseLive {
		return nil, torchaterr.New(torchaterr.KindNotConnected, "endpoint is not live")
	}
	e.mu.Lock()
	sess := e.current
	e.mu.Unlock()
	if sess == nil {
		return nil, torchaterr.New(torchaterr.KindNotConnected, "endpoint is not live")
	}
	return sess, nil
}

// SendMessage encrypts and sends text to the peer.
func (e *Endpoint) SendMessage(text string) error {
	sess, err := e.liveSession()
	if err != nil {
		return err
	}
	return e.sendOn(sess, func() error { return sess.proto.SendMessage(text) })
}

// SendTyping sends a typing indicator to the peer.
func (e *Endpoint) SendTyping() error {
	sess, err := e.liveSession()
	if err != nil {
		return err
	}
	return e.sendOn(sess, func() error { return sess.proto.SendTyping() })
}

// SendReadReceipt sends a read receipt to the peer.
func (e *Endpoint) SendReadReceipt() error {
	sess, err := e.liveSession()
	if err != nil {
		return err
	}
	return e.sendOn(sess, func() error { return sess.proto.SendReadReceipt() })
}

// newSessionFrom wraps stream in a FrameCodec and crypto.Session, giving
// it the next generation id.
func (e *Endpoint) newSessionFrom(stream protocol.Stream) (*session, error) {
	cryptoSession, err := crypto.New()
	if err != nil {
		return nil, err
	}
	return &session{
		generation: e.generator.Add(1),
		stream:     stream,
		proto:      protocol.NewSession(protocol.NewFrameCodec(stream), cryptoSession),
	}, nil
}

// establish runs the handshake for stream, adopts it as the current
// session on success, starts its dispatch loop, and transitions to Live.
// On handshake failure the stream and crypto session are torn down and
// the error is returned; the caller decides whether that is fatal (it is
// always fatal for a connector, never for a listener's accept loop).
func (e *Endpoint) establish(stream protocol.Stream) error {
	e.bus.PeerConnecting()
	e.setPhase(PhaseHandshaking)

	sess, err := e.newSessionFrom(stream)
	if err != nil {
		stream.Close()
		return err
	}

	if err := runHandshake(e.ctx, e.role, sess.proto); err != nil {
		sess.proto.Close()
		return err
	}

	e.adopt(sess)
	e.setPhase(PhaseLive)

	e.wg.Add(1)
	go e.dispatch(sess)

	e.bus.PeerConnected()
	return nil
}

// Stop tears the endpoint down: cancels in-flight operations, closes the
// current session without firing peer-disconnected (a cooperative local
// shutdown never does), and closes the event bus after all goroutines
// have exited.
func (e *Endpoint) Stop() {
	e.closeOnce.Do(func() {
		e.setPhase(PhaseClosing)
		e.cancel()

		e.mu.Lock()
		sess := e.current
		e.current = nil
		e.mu.Unlock()

		if sess != nil {
			sess.proto.Close()
		}

		e.wg.Wait()
		e.setPhase(PhaseClosed)
		e.bus.Close()
	})
}

// netDeadlineStream returns conn as a protocol.Stream; a net.Conn already
// satisfies that interface, so no wrapping takes place.
func netDeadlineStream(conn net.Conn) protocol.Stream {
	return conn
}

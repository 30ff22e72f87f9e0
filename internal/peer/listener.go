package peer

import (
	"errors"
	"log/slog"
	"net"
	"strconv"

	"torchat/internal/logging"
)

// ListenerEndpoint is the hidden-service side: it accepts one inbound TCP
// connection at a time on a loopback port and repeatedly replaces its
// live session as new inbound connections arrive.
type ListenerEndpoint struct {
	*Endpoint

	listener net.Listener
}

// Listen binds listenPort on loopback and returns a ListenerEndpoint ready
// to Start accepting. The caller owns calling Stop to release the socket.
func Listen(listenPort int, logger *slog.Logger, onMsg OnMessage) (*ListenerEndpoint, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(listenPort)))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ListenerEndpoint{
		Endpoint: newEndpoint(RoleListener, logger, onMsg),
		listener: ln,
	}, nil
}

// Start runs the accept loop in the background until the endpoint is
// stopped. A fresh inbound connection replaces any existing live session.
func (l *ListenerEndpoint) Start() {
	l.wg.Add(1)
	go l.acceptLoop()
}

func (l *ListenerEndpoint) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Error("accept failed", logging.KeyComponent, "peer.listener", logging.KeyError, err.Error())
			return
		}

		if err := l.establish(netDeadlineStream(conn)); err != nil {
			l.logger.Warn("handshake failed, continuing to accept",
				logging.KeyComponent, "peer.listener",
				logging.KeyRole, l.role.String(),
				logging.KeyError, err.Error())
			continue
		}
	}
}

// Stop closes the listening socket before tearing down the base Endpoint.
// acceptLoop blocks in listener.Accept() with no deadline, so the socket
// must close first to unblock it; closing it only after Endpoint.Stop()
// returns would deadlock Endpoint.Stop()'s wg.Wait() against an accept
// loop that is still parked in Accept().
func (l *ListenerEndpoint) Stop() {
	l.listener.Close()
	l.Endpoint.Stop()
}

// Addr returns the loopback address the listener is bound to.
func (l *ListenerEndpoint) Addr() net.Addr {
	return l.listener.Addr()
}

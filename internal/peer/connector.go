package peer

import (
	"context"
	"log/slog"
	"time"

	"torchat/internal/logging"
	"torchat/internal/socks5"
)

// SocksIOTimeout bounds the SOCKS5 dial and its handshake I/O.
const SocksIOTimeout = 120 * time.Second

// ConnectorEndpoint is the SOCKS5-client side: it dials a hidden-address
// target through a local SOCKS5 proxy and runs the connector-role
// handshake.
type ConnectorEndpoint struct {
	*Endpoint

	dialer *socks5.Dialer
}

// NewConnector builds a ConnectorEndpoint that will dial through the
// SOCKS5 proxy at proxyHost:proxyPort, bounding the dial and its
// handshake I/O by SocksIOTimeout.
func NewConnector(proxyHost string, proxyPort int, logger *slog.Logger, onMsg OnMessage) *ConnectorEndpoint {
	return NewConnectorWithTimeout(proxyHost, proxyPort, SocksIOTimeout, logger, onMsg)
}

// NewConnectorWithTimeout is NewConnector with an explicit SOCKS5 I/O
// timeout, for callers driven by a loaded Config rather than the default.
func NewConnectorWithTimeout(proxyHost string, proxyPort int, socksIOTimeout time.Duration, logger *slog.Logger, onMsg OnMessage) *ConnectorEndpoint {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ConnectorEndpoint{
		Endpoint: newEndpoint(RoleConnector, logger, onMsg),
		dialer:   socks5.NewDialer(proxyHost, proxyPort, socksIOTimeout),
	}
}

// Connect dials targetHost:targetPort through the SOCKS5 proxy and runs
// the connector handshake. On success the endpoint transitions to Live
// and its dispatch loop starts; on failure the endpoint remains Idle and
// the error is returned directly to the caller (the connector role has
// no accept loop to continue).
func (c *ConnectorEndpoint) Connect(ctx context.Context, targetHost string, targetPort int) error {
	c.setPhase(PhaseDialing)

	stream, err := c.dialer.Connect(ctx, targetHost, targetPort)
	if err != nil {
		c.setPhase(PhaseIdle)
		return err
	}

	if err := c.establish(stream); err != nil {
		c.setPhase(PhaseIdle)
		return err
	}

	return nil
}

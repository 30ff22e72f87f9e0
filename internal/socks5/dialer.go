// Package socks5 implements the client half of a SOCKS5 CONNECT handshake
// (RFC 1928) sufficient to reach a Tor onion service through the local
// tor SOCKS proxy. No BIND, UDP ASSOCIATE, or server-side listener is
// implemented: torchat only ever dials out through SOCKS5, it never
// terminates one.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"torchat/internal/torchaterr"
)

// Protocol constants per RFC 1928.
const (
	version5 = 0x05

	authNoneRequired = 0x00
	authNoAcceptable = 0xFF

	cmdConnect = 0x01

	addrTypeIPv4   = 0x01
	addrTypeDomain = 0x03
	addrTypeIPv6   = 0x04

	replySucceeded = 0x00
)

// replyName returns a human-readable name for a SOCKS5 REP byte, used in
// error messages.
func replyName(code byte) string {
	switch code {
	case 0x00:
		return "succeeded"
	case 0x01:
		return "general SOCKS server failure"
	case 0x02:
		return "connection not allowed by ruleset"
	case 0x03:
		return "network unreachable"
	case 0x04:
		return "host unreachable"
	case 0x05:
		return "connection refused"
	case 0x06:
		return "TTL expired"
	case 0x07:
		return "command not supported"
	case 0x08:
		return "address type not supported"
	default:
		return "unknown reply code"
	}
}

// Dialer connects to a target host:port through a local SOCKS5 proxy
// (ordinarily tor's SocksPort) using the CONNECT command. It never
// authenticates: the standard tor SOCKS proxy accepts NO AUTHENTICATION
// REQUIRED, and torchat is never used against a proxy that demands more.
type Dialer struct {
	ProxyAddress string
	DialTimeout  time.Duration
}

// NewDialer builds a Dialer targeting the SOCKS5 proxy at proxyHost:proxyPort.
func NewDialer(proxyHost string, proxyPort int, dialTimeout time.Duration) *Dialer {
	return &Dialer{
		ProxyAddress: net.JoinHostPort(proxyHost, fmt.Sprintf("%d", proxyPort)),
		DialTimeout:  dialTimeout,
	}
}

// Connect performs the full SOCKS5 handshake and returns the resulting
// net.Conn positioned to speak the application protocol directly to
// targetHost:targetPort. targetHost is sent as a domain name (address
// type 0x03) unconditionally, since torchat's targets are .onion
// addresses that only tor itself resolves.
func (d *Dialer) Connect(ctx context.Context, targetHost string, targetPort int) (net.Conn, error) {
	netDialer := net.Dialer{Timeout: d.DialTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", d.ProxyAddress)
	if err != nil {
		return nil, torchaterr.Wrap(torchaterr.KindSocksNegotiation, "dial socks5 proxy failed", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if d.DialTimeout > 0 {
		conn.SetDeadline(time.Now().Add(d.DialTimeout))
	}

	if err := negotiateNoAuth(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if err := sendConnectRequest(conn, targetHost, targetPort); err != nil {
		conn.Close()
		return nil, err
	}

	if err := readConnectReply(conn); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}

// negotiateNoAuth performs the version/method exchange, requesting only
// NO AUTHENTICATION REQUIRED.
func negotiateNoAuth(conn net.Conn) error {
	greeting := []byte{version5, 0x01, authNoneRequired}
	if _, err := conn.Write(greeting); err != nil {
		return torchaterr.Wrap(torchaterr.KindSocksNegotiation, "write method greeting failed", err)
	}

	reply := make([]byte, 2)
	if _, err := readFullSocks(conn, reply); err != nil {
		return wrapReadErr(torchaterr.KindSocksNegotiation, "read method selection failed", err)
	}

	if reply[0] != version5 {
		return torchaterr.New(torchaterr.KindSocksNegotiation, "proxy replied with unsupported socks version")
	}
	if reply[1] == authNoAcceptable {
		return torchaterr.New(torchaterr.KindSocksNegotiation, "proxy rejected no-authentication method")
	}
	if reply[1] != authNoneRequired {
		return torchaterr.New(torchaterr.KindSocksNegotiation, "proxy selected an unsupported auth method")
	}
	return nil
}

// sendConnectRequest sends a CONNECT request for host:port as a domain
// name address.
func sendConnectRequest(conn net.Conn, host string, port int) error {
	if len(host) == 0 || len(host) > 255 {
		return torchaterr.New(torchaterr.KindSocksProtocol, "target host name has invalid length for socks5 domain encoding")
	}

	req := make([]byte, 0, 7+len(host))
	req = append(req, version5, cmdConnect, 0x00, addrTypeDomain, byte(len(host)))
	req = append(req, host...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, uint16(port))
	req = append(req, portBytes...)

	if _, err := conn.Write(req); err != nil {
		return torchaterr.Wrap(torchaterr.KindSocksProtocol, "write connect request failed", err)
	}
	return nil
}

// readConnectReply reads and validates the CONNECT reply, consuming and
// discarding the BND.ADDR/BND.PORT fields regardless of address type.
func readConnectReply(conn net.Conn) error {
	header := make([]byte, 4)
	if _, err := readFullSocks(conn, header); err != nil {
		return wrapReadErr(torchaterr.KindSocksConnect, "read connect reply header failed", err)
	}

	if header[0] != version5 {
		return torchaterr.New(torchaterr.KindSocksConnect, "connect reply has unsupported socks version")
	}

	rep := header[1]
	if rep != replySucceeded {
		return &torchaterr.SocksConnectError{Code: rep}
	}

	addrType := header[3]
	var addrLen int
	switch addrType {
	case addrTypeIPv4:
		addrLen = 4
	case addrTypeIPv6:
		addrLen = 16
	case addrTypeDomain:
		lenByte := make([]byte, 1)
		if _, err := readFullSocks(conn, lenByte); err != nil {
			return wrapReadErr(torchaterr.KindSocksConnect, "read connect reply domain length failed", err)
		}
		addrLen = int(lenByte[0])
	default:
		return torchaterr.New(torchaterr.KindSocksConnect, "connect reply has unsupported address type")
	}

	discard := make([]byte, addrLen+2) // address + port
	if _, err := readFullSocks(conn, discard); err != nil {
		return wrapReadErr(torchaterr.KindSocksConnect, "read connect reply bound address failed", err)
	}

	return nil
}

func readFullSocks(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// wrapReadErr classifies a read failure: EOF and unexpected-EOF mean the
// proxy closed or truncated the stream mid-exchange, which is always a
// SocksProtocol failure regardless of which exchange step it happened in.
// Any other error (timeout, reset, etc.) keeps the caller's Kind.
func wrapReadErr(kind torchaterr.Kind, msg string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return torchaterr.Wrap(torchaterr.KindSocksProtocol, msg, err)
	}
	return torchaterr.Wrap(kind, msg, err)
}

// ReplyName exposes replyName for error-message formatting in callers
// that want a friendlier description than torchaterr.SocksConnectError
// provides on its own.
func ReplyName(code byte) string {
	return replyName(code)
}

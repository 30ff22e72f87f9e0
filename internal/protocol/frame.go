// Package protocol implements the length-prefixed typed frame wire format
// and the session-level semantics (key exchange, encrypted messages,
// typing indicators, read receipts, connection acks) layered on top of it.
package protocol

import (
	"encoding/binary"
	"io"
	"time"

	"torchat/internal/torchaterr"
)

// Frame kinds. Unknown kinds are a protocol error.
const (
	KindKeyExchange      byte = 0x01
	KindEncryptedMessage byte = 0x02
	KindTypingIndicator  byte = 0x03
	KindReadReceipt      byte = 0x04
	KindConnectionAck    byte = 0x05
)

// HeaderSize is kind(1) + length(4, little-endian).
const HeaderSize = 5

// MaxPayloadSize is the hard cap on a frame payload: 10 MiB.
const MaxPayloadSize = 10 * 1024 * 1024

// Stream is the duplex byte stream a FrameCodec reads and writes frames
// over: a net.Conn returned by a TCP accept or by Socks5Dialer.Connect.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// FrameName returns a human-readable name for a frame kind.
func FrameName(kind byte) string {
	switch kind {
	case KindKeyExchange:
		return "KeyExchange"
	case KindEncryptedMessage:
		return "EncryptedMessage"
	case KindTypingIndicator:
		return "TypingIndicator"
	case KindReadReceipt:
		return "ReadReceipt"
	case KindConnectionAck:
		return "ConnectionAck"
	default:
		return "Unknown"
	}
}

// FrameCodec reads and writes length-prefixed frames over a Stream. It
// performs no internal buffering beyond one frame in flight: reads and
// writes loop on short I/O until exactly HeaderSize+length bytes have
// moved.
type FrameCodec struct {
	stream Stream
}

// NewFrameCodec wraps stream in a FrameCodec.
func NewFrameCodec(stream Stream) *FrameCodec {
	return &FrameCodec{stream: stream}
}

// Close closes the underlying stream.
func (c *FrameCodec) Close() error {
	return c.stream.Close()
}

// WriteFrame writes kind and payload as a single frame: header then
// payload, written as one atomic call so concurrent writers (guarded by
// a higher-level send mutex) never interleave partial frames.
func (c *FrameCodec) WriteFrame(kind byte, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return torchaterr.New(torchaterr.KindProtocolError, "payload exceeds maximum frame size")
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = kind
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	if err := writeFull(c.stream, buf); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one frame: an exact 5-byte header, validated, then an
// exact-length payload read (skipped when length is 0). An oversized
// declared length is rejected before any payload storage is allocated.
func (c *FrameCodec) ReadFrame() (kind byte, payload []byte, err error) {
	header := make([]byte, HeaderSize)
	if err := readFull(c.stream, header); err != nil {
		return 0, nil, err
	}

	kind = header[0]
	length := binary.LittleEndian.Uint32(header[1:5])
	if length > MaxPayloadSize {
		return 0, nil, torchaterr.New(torchaterr.KindProtocolError, "declared frame length exceeds maximum")
	}

	if length == 0 {
		return kind, nil, nil
	}

	payload = make([]byte, length)
	if err := readFull(c.stream, payload); err != nil {
		return 0, nil, err
	}

	return kind, payload, nil
}

// readFull loops until buf is filled, translating EOF/unexpected-EOF into
// a ConnectionClosed error.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return torchaterr.Wrap(torchaterr.KindConnectionClosed, "connection closed mid-frame", err)
		}
		return torchaterr.Wrap(torchaterr.KindConnectionClosed, "frame read failed", err)
	}
	return nil
}

// writeFull loops until all of buf has been written.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return torchaterr.Wrap(torchaterr.KindConnectionClosed, "frame write failed", err)
		}
		buf = buf[n:]
	}
	return nil
}

// Package torchaterr defines the error taxonomy shared by the protocol,
// crypto, socks5, and peer packages.
package torchaterr

import "errors"

// Kind classifies a failure so callers can decide whether it is fatal for
// the attempt, fatal for the session, or a clean local shutdown.
type Kind int

const (
	KindUnknown Kind = iota
	KindSocksNegotiation
	KindSocksConnect
	KindSocksProtocol
	KindConnectionClosed
	KindProtocolError
	KindBadPeerKey
	KindIntegrityFailed
	KindMalformedCiphertext
	KindNotInitialized
	KindNotConnected
	KindTimeout
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindSocksNegotiation:
		return "SocksNegotiation"
	case KindSocksConnect:
		return "SocksConnect"
	case KindSocksProtocol:
		return "SocksProtocol"
	case KindConnectionClosed:
		return "ConnectionClosed"
	case KindProtocolError:
		return "ProtocolError"
	case KindBadPeerKey:
		return "BadPeerKey"
	case KindIntegrityFailed:
		return "IntegrityFailed"
	case KindMalformedCiphertext:
		return "MalformedCiphertext"
	case KindNotInitialized:
		return "NotInitialized"
	case KindNotConnected:
		return "NotConnected"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify it
// with errors.As without parsing error strings.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err (or anything it wraps) is a torchaterr Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// SocksConnectError carries the raw SOCKS5 REP byte for SocksConnect failures.
type SocksConnectError struct {
	Code byte
}

func (e *SocksConnectError) Error() string {
	return "socks5 connect failed, reply code " + byteToHex(e.Code)
}

func byteToHex(b byte) string {
	const hex = "0123456789abcdef"
	return "0x" + string([]byte{hex[b>>4], hex[b&0x0f]})
}

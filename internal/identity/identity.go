// Package identity provides a process-local display handle for log lines.
//
// A PeerID is never transmitted on the wire and never participates in the
// ECDH handshake (see internal/crypto): torchat does not authenticate peer
// identity, only the transport-layer control of the hidden address. Binding
// an identity to the key exchange is future work, not a silent upgrade.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const idSize = 16

var (
	// ErrInvalidHexString is returned when the hex string is malformed.
	ErrInvalidHexString = errors.New("invalid hex string for peer id")

	// ZeroID represents an uninitialized PeerID.
	ZeroID = PeerID{}
)

// PeerID is a random 128-bit local display handle, used only for logging.
type PeerID [idSize]byte

// NewPeerID generates a new random PeerID using crypto/rand.
func NewPeerID() (PeerID, error) {
	var id PeerID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		return ZeroID, fmt.Errorf("generate peer id: %w", err)
	}
	return id, nil
}

// ParsePeerID parses a PeerID from a hex string, as accepted by the
// --peer-id flag for correlating log lines across separate runs of the
// same logical identity.
func ParsePeerID(s string) (PeerID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	if len(s) != idSize*2 {
		return ZeroID, fmt.Errorf("%w: got %d hex chars, expected %d", ErrInvalidHexString, len(s), idSize*2)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidHexString, err)
	}

	var id PeerID
	copy(id[:], b)
	return id, nil
}

// String returns the full hex representation of the PeerID.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns a shortened hex representation (first 8 chars).
func (id PeerID) ShortString() string {
	return hex.EncodeToString(id[:4])
}

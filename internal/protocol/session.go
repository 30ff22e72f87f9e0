package protocol

import (
	"torchat/internal/crypto"
	"torchat/internal/torchaterr"
)

// Event reports one received frame, decoded and decrypted where relevant.
// Text is meaningful only when HasText is true (KindEncryptedMessage).
type Event struct {
	Kind    byte
	Text    string
	HasText bool
}

// Session binds a FrameCodec to a crypto.Session, giving callers typed
// send methods and a single Receive loop that performs key derivation and
// decryption inline so callers never see raw frame bytes.
type Session struct {
	codec  *FrameCodec
	crypto *crypto.Session
}

// NewSession wraps codec and crypto together.
func NewSession(codec *FrameCodec, cryptoSession *crypto.Session) *Session {
	return &Session{codec: codec, crypto: cryptoSession}
}

// SendKeyExchange sends this session's ephemeral public key.
func (s *Session) SendKeyExchange() error {
	return s.codec.WriteFrame(KindKeyExchange, s.crypto.PublicKeyBlob())
}

// SendAck sends a bare connection acknowledgement.
func (s *Session) SendAck() error {
	return s.codec.WriteFrame(KindConnectionAck, nil)
}

// SendMessage encrypts text and sends it as an EncryptedMessage frame.
// The crypto session must already be derived.
func (s *Session) SendMessage(text string) error {
	ct, err := s.crypto.Encrypt(text)
	if err != nil {
		return err
	}
	return s.codec.WriteFrame(KindEncryptedMessage, ct)
}

// SendTyping sends a typing indicator.
func (s *Session) SendTyping() error {
	return s.codec.WriteFrame(KindTypingIndicator, nil)
}

// SendReadReceipt sends a read receipt.
func (s *Session) SendReadReceipt() error {
	return s.codec.WriteFrame(KindReadReceipt, nil)
}

// Receive reads and interprets the next frame. KindKeyExchange performs
// key derivation as a side effect; KindEncryptedMessage decrypts and
// returns the plaintext with HasText set. Any other recognized kind is
// returned with no payload interpretation. Unrecognized kinds are a
// protocol error.
func (s *Session) Receive() (Event, error) {
	kind, payload, err := s.codec.ReadFrame()
	if err != nil {
		return Event{}, err
	}

	switch kind {
	case KindKeyExchange:
		if err := s.crypto.Derive(payload); err != nil {
			return Event{}, err
		}
		return Event{Kind: kind}, nil

	case KindEncryptedMessage:
		text, err := s.crypto.Decrypt(payload)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: kind, Text: text, HasText: true}, nil

	case KindTypingIndicator, KindReadReceipt, KindConnectionAck:
		return Event{Kind: kind}, nil

	default:
		return Event{}, torchaterr.New(torchaterr.KindProtocolError, "unrecognized frame kind")
	}
}

// Close closes the underlying codec's stream and zeroes crypto secrets.
func (s *Session) Close() error {
	s.crypto.Close()
	return s.codec.Close()
}

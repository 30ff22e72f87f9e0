package protocol

import (
	"net"
	"testing"

	"torchat/internal/crypto"
)

func pairedProtocolSessions(t *testing.T) (*Session, *Session, func()) {
	t.Helper()

	connA, connB := net.Pipe()

	cryptoA, err := crypto.New()
	if err != nil {
		t.Fatalf("crypto.New() A error = %v", err)
	}
	cryptoB, err := crypto.New()
	if err != nil {
		t.Fatalf("crypto.New() B error = %v", err)
	}

	a := NewSession(NewFrameCodec(connA), cryptoA)
	b := NewSession(NewFrameCodec(connB), cryptoB)

	return a, b, func() {
		a.Close()
		b.Close()
	}
}

func doKeyExchange(t *testing.T, a, b *Session) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendKeyExchange() }()

	ev, err := b.Receive()
	if err != nil {
		t.Fatalf("b.Receive() error = %v", err)
	}
	if ev.Kind != KindKeyExchange {
		t.Fatalf("b received kind %x, want KeyExchange", ev.Kind)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("a.SendKeyExchange() error = %v", err)
	}

	errCh2 := make(chan error, 1)
	go func() { errCh2 <- b.SendKeyExchange() }()

	ev2, err := a.Receive()
	if err != nil {
		t.Fatalf("a.Receive() error = %v", err)
	}
	if ev2.Kind != KindKeyExchange {
		t.Fatalf("a received kind %x, want KeyExchange", ev2.Kind)
	}
	if err := <-errCh2; err != nil {
		t.Fatalf("b.SendKeyExchange() error = %v", err)
	}
}

func TestSession_KeyExchange_And_MessageRoundTrip(t *testing.T) {
	a, b, cleanup := pairedProtocolSessions(t)
	defer cleanup()

	doKeyExchange(t, a, b)

	const text = "hello from a"
	errCh := make(chan error, 1)
	go func() { errCh <- a.SendMessage(text) }()

	ev, err := b.Receive()
	if err != nil {
		t.Fatalf("b.Receive() error = %v", err)
	}
	if !ev.HasText || ev.Text != text {
		t.Errorf("received event = %+v, want text %q", ev, text)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("a.SendMessage() error = %v", err)
	}
}

func TestSession_TypingAndReadReceipt(t *testing.T) {
	a, b, cleanup := pairedProtocolSessions(t)
	defer cleanup()

	doKeyExchange(t, a, b)

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendTyping() }()
	ev, err := b.Receive()
	if err != nil {
		t.Fatalf("b.Receive() error = %v", err)
	}
	if ev.Kind != KindTypingIndicator || ev.HasText {
		t.Errorf("received event = %+v, want bare TypingIndicator", ev)
	}
	<-errCh

	errCh2 := make(chan error, 1)
	go func() { errCh2 <- a.SendReadReceipt() }()
	ev2, err := b.Receive()
	if err != nil {
		t.Fatalf("b.Receive() error = %v", err)
	}
	if ev2.Kind != KindReadReceipt || ev2.HasText {
		t.Errorf("received event = %+v, want bare ReadReceipt", ev2)
	}
	<-errCh2
}

func TestSession_Receive_UnrecognizedKind_IsProtocolError(t *testing.T) {
	a, b, cleanup := pairedProtocolSessions(t)
	defer cleanup()

	errCh := make(chan error, 1)
	go func() { errCh <- a.codec.WriteFrame(0x7F, nil) }()

	if _, err := b.Receive(); err == nil {
		t.Fatal("Receive() of unrecognized kind succeeded, want error")
	}
	<-errCh
}

func TestSession_SendMessage_BeforeKeyExchange_Fails(t *testing.T) {
	a, b, cleanup := pairedProtocolSessions(t)
	defer cleanup()
	_ = b

	if err := a.SendMessage("too early"); err == nil {
		t.Error("SendMessage() before key exchange succeeded, want error")
	}
}

package crypto

import (
	"strings"
	"testing"
)

func pairedSessions(t *testing.T) (*Session, *Session) {
	t.Helper()

	a, err := New()
	if err != nil {
		t.Fatalf("New() A error = %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New() B error = %v", err)
	}

	if err := a.Derive(b.PublicKeyBlob()); err != nil {
		t.Fatalf("a.Derive() error = %v", err)
	}
	if err := b.Derive(a.PublicKeyBlob()); err != nil {
		t.Fatalf("b.Derive() error = %v", err)
	}

	return a, b
}

func TestNew_FreshKeyPairs(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if string(a.PublicKeyBlob()) == string(b.PublicKeyBlob()) {
		t.Error("two fresh sessions produced identical ephemeral public keys")
	}
}

func TestDerive_DifferentSubkeysPerPairing(t *testing.T) {
	a1, b1 := pairedSessions(t)
	a2, b2 := pairedSessions(t)

	if a1.aesKey == a2.aesKey {
		t.Error("two independently paired sessions produced identical aes_key")
	}
	if b1.macKey == b2.macKey {
		t.Error("two independently paired sessions produced identical mac_key")
	}
}

func TestDerive_Twice_IsAnError(t *testing.T) {
	a, b := pairedSessions(t)
	_ = b
	if err := a.Derive(b.PublicKeyBlob()); err == nil {
		t.Error("second Derive() call succeeded, want error")
	}
}

func TestDerive_BadPeerKey(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Derive([]byte("not a valid ecdh point")); err == nil {
		t.Error("Derive() with garbage blob succeeded, want error")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	a, b := pairedSessions(t)

	messages := []string{"hello", "", strings.Repeat("x", 280), "emoji: \U0001F600", "utf-8: héllo wörld"}

	for _, m := range messages {
		ct, err := a.Encrypt(m)
		if err != nil {
			t.Fatalf("a.Encrypt(%q) error = %v", m, err)
		}
		got, err := b.Decrypt(ct)
		if err != nil {
			t.Fatalf("b.Decrypt() error = %v", err)
		}
		if got != m {
			t.Errorf("round trip = %q, want %q", got, m)
		}

		ct2, err := b.Encrypt(m)
		if err != nil {
			t.Fatalf("b.Encrypt(%q) error = %v", m, err)
		}
		got2, err := a.Decrypt(ct2)
		if err != nil {
			t.Fatalf("a.Decrypt() error = %v", err)
		}
		if got2 != m {
			t.Errorf("reverse round trip = %q, want %q", got2, m)
		}
	}
}

func TestEncrypt_EmptyPlaintext_ExactLength(t *testing.T) {
	a, b := pairedSessions(t)

	ct, err := a.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt(\"\") error = %v", err)
	}

	want := IVSize + 16 + TagSize // one padding-only block
	if len(ct) != want {
		t.Errorf("len(ciphertext) = %d, want %d", len(ct), want)
	}

	got, err := b.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestDecrypt_TamperedByte_NeverReturnsPlaintext(t *testing.T) {
	a, b := pairedSessions(t)

	ct, err := a.Encrypt("secret message")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	for i := range ct {
		tampered := append([]byte(nil), ct...)
		tampered[i] ^= 0x01

		if _, err := b.Decrypt(tampered); err == nil {
			t.Fatalf("Decrypt() of tampered byte %d succeeded, want failure", i)
		}
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	_, b := pairedSessions(t)

	if _, err := b.Decrypt(make([]byte, minCiphertextLen-1)); err == nil {
		t.Error("Decrypt() of undersized input succeeded, want failure")
	}
}

func TestEncrypt_NotInitialized(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Encrypt("hi"); err == nil {
		t.Error("Encrypt() before Derive() succeeded, want NotInitialized error")
	}
}

func TestDecrypt_NotInitialized(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Decrypt(make([]byte, minCiphertextLen)); err == nil {
		t.Error("Decrypt() before Derive() succeeded, want NotInitialized error")
	}
}

func TestClose_ZeroesSecrets(t *testing.T) {
	a, _ := pairedSessions(t)

	a.Close()

	var zero [KeySize]byte
	if a.aesKey != zero {
		t.Error("aes_key not zeroed after Close()")
	}
	if a.macKey != zero {
		t.Error("mac_key not zeroed after Close()")
	}
	if a.IsInitialized() {
		t.Error("IsInitialized() true after Close()")
	}
}

func TestPKCS7PadUnpad_RoundTrip(t *testing.T) {
	for n := 0; n < 64; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		padded := pkcs7Pad(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not a multiple of 16", len(padded))
		}
		unpadded, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("pkcs7Unpad() error = %v", err)
		}
		if string(unpadded) != string(data) {
			t.Fatalf("round trip mismatch for n=%d", n)
		}
	}
}

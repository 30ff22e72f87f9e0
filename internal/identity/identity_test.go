package identity

import "testing"

func TestNewPeerID(t *testing.T) {
	id1, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID() error = %v", err)
	}

	if id1 == ZeroID {
		t.Error("NewPeerID() returned zero ID")
	}

	id2, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID() error = %v", err)
	}

	if id1 == id2 {
		t.Error("NewPeerID() returned duplicate IDs")
	}
}

func TestPeerID_String(t *testing.T) {
	id, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID() error = %v", err)
	}

	s := id.String()
	if len(s) != 32 {
		t.Errorf("String() length = %d, want 32", len(s))
	}
}

func TestPeerID_ShortString(t *testing.T) {
	id, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID() error = %v", err)
	}

	s := id.ShortString()
	if len(s) != 8 {
		t.Errorf("ShortString() length = %d, want 8", len(s))
	}

	full := id.String()
	if s != full[:8] {
		t.Errorf("ShortString() = %s, want prefix of %s", s, full)
	}
}

func TestParsePeerID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid hex string", "a3f8c2d1e5b94a7c8d2e1f0a3b5c7d9e", false},
		{"valid with 0x prefix", "0xa3f8c2d1e5b94a7c8d2e1f0a3b5c7d9e", false},
		{"valid with whitespace", "  a3f8c2d1e5b94a7c8d2e1f0a3b5c7d9e  ", false},
		{"too short", "a3f8c2d1e5b94a7c", true},
		{"too long", "a3f8c2d1e5b94a7c8d2e1f0a3b5c7d9e00", true},
		{"invalid hex chars", "g3f8c2d1e5b94a7c8d2e1f0a3b5c7d9e", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParsePeerID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeerID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && id == ZeroID {
				t.Error("ParsePeerID() returned zero ID for valid input")
			}
		})
	}
}

func TestParsePeerID_RoundTrip(t *testing.T) {
	original, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID() error = %v", err)
	}

	s1 := original.String()
	parsed, err := ParsePeerID(s1)
	if err != nil {
		t.Fatalf("ParsePeerID() error = %v", err)
	}
	s2 := parsed.String()

	if s1 != s2 {
		t.Errorf("round-trip failed: %s != %s", s1, s2)
	}
	if parsed != original {
		t.Error("round-trip through ParsePeerID/String did not reproduce the original id")
	}
}

package digconfig

import (
	"encoding/hex"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/chunker"
)

func TestUserNameUnset(t *testing.T) {
	if _, ok := UserName(MapStore{}); ok {
		t.Error("expected ok=false for unset user.name")
	}
}

func TestUserNameSet(t *testing.T) {
	s := MapStore{"user.name": "alice"}
	v, ok := UserName(s)
	if !ok || v != "alice" {
		t.Errorf("UserName = (%q, %v), want (\"alice\", true)", v, ok)
	}
}

func TestPublicKeyUnset(t *testing.T) {
	_, ok, err := PublicKey(MapStore{})
	if err != nil || ok {
		t.Errorf("PublicKey = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestPublicKeyValid(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	s := MapStore{"publisher.public_key": hex.EncodeToString(raw)}
	pk, ok, err := PublicKey(s)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	for i := range raw {
		if pk[i] != raw[i] {
			t.Fatalf("PublicKey byte %d mismatch", i)
		}
	}
}

func TestPublicKeyWrongLength(t *testing.T) {
	s := MapStore{"publisher.public_key": hex.EncodeToString([]byte("short"))}
	_, ok, err := PublicKey(s)
	if err == nil || !ok {
		t.Errorf("expected error for short key, got ok=%v err=%v", ok, err)
	}
}

func TestPublicKeyInvalidHex(t *testing.T) {
	s := MapStore{"publisher.public_key": "not-hex"}
	if _, _, err := PublicKey(s); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestChunkingProfileDefault(t *testing.T) {
	p := ChunkingProfile(MapStore{})
	if p != chunker.DefaultProfile {
		t.Errorf("ChunkingProfile = %+v, want DefaultProfile", p)
	}
}

func TestChunkingProfileLarge(t *testing.T) {
	p := ChunkingProfile(MapStore{"chunking.profile": "large"})
	if p != chunker.LargeProfile {
		t.Errorf("ChunkingProfile = %+v, want LargeProfile", p)
	}
}

func TestEncryptedStorage(t *testing.T) {
	if EncryptedStorage(MapStore{}) {
		t.Error("expected false by default")
	}
	if !EncryptedStorage(MapStore{"storage.encrypted": "true"}) {
		t.Error("expected true for \"true\"")
	}
	if !EncryptedStorage(MapStore{"storage.encrypted": "1"}) {
		t.Error("expected true for \"1\"")
	}
	if EncryptedStorage(MapStore{"storage.encrypted": "false"}) {
		t.Error("expected false for \"false\"")
	}
}

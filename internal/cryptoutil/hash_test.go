package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestSHA256Hex_KnownVector(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256Hex(nil); got != want {
		t.Fatalf("SHA256Hex(nil) = %s, want %s", got, want)
	}
}

func TestSHA256Hex_DifferentInputs(t *testing.T) {
	if SHA256Hex([]byte(`{"a":1}`)) == SHA256Hex([]byte(`{"a":2}`)) {
		t.Fatal("different inputs produced the same digest")
	}
}

func TestStrongETag(t *testing.T) {
	got := StrongETag([]byte("{}\n"))
	if len(got) != 66 || got[0] != '"' || got[65] != '"' {
		t.Fatalf("StrongETag = %s", got)
	}
	if got[1:65] != SHA256Hex([]byte("{}\n")) {
		t.Fatal("tag does not wrap the digest")
	}
}

func FuzzSHA256Hex(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte(`{"fr":{"stats":[]}}`))
	f.Add([]byte{0xff, 0xfe, 0xfd})

	f.Fuzz(func(t *testing.T, data []byte) {
		result := SHA256Hex(data)
		if len(result) != 64 {
			t.Errorf("length = %d, want 64", len(result))
		}
		if result != strings.ToLower(result) {
			t.Errorf("not lowercase: %q", result)
		}
		h := sha256.Sum256(data)
		if want := hex.EncodeToString(h[:]); result != want {
			t.Errorf("SHA256Hex = %q, stdlib = %q", result, want)
		}
	})
}

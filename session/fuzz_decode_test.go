package session

import (
	"testing"
	"time"
)

// FuzzSessionDecode feeds arbitrary bytes to the decoder. It must never
// panic, and whatever it accepts must encode back to the same bytes.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		UserID:         "user1",
		CreatedAt:      time.UnixMilli(1700000000000),
		LastActivityAt: time.UnixMilli(1700003600000),
		Metadata:       Metadata{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"},
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{CurrentSchemaVersion})
	f.Add([]byte{CurrentSchemaVersion, 0})
	f.Add([]byte{255, 255, 255})

	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 20 {
		f.Add(encoded[:20])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("re-encode of decoded value failed: %v", err)
		}
		if string(again) != string(data) {
			t.Fatalf("round trip changed bytes")
		}
	})
}

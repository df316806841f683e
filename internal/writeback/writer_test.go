package writeback

import (
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"a", "b", "c"}

	first := Fingerprint(ids, ts)
	second := Fingerprint(ids, ts)
	if first != second {
		t.Fatalf("got %s and %s, want identical fingerprints", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("got fingerprint length %d, want 64", len(first))
	}
}

func TestFingerprintOrderSensitive(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ab := Fingerprint([]string{"a", "b"}, ts)
	ba := Fingerprint([]string{"b", "a"}, ts)
	if ab == ba {
		t.Fatal("reordered ids produced the same fingerprint")
	}

	// Id boundaries matter: ["ab"] and ["a","b"] are different windows.
	joined := Fingerprint([]string{"ab"}, ts)
	split := Fingerprint([]string{"a", "b"}, ts)
	if joined == split {
		t.Fatal("id boundary collision in fingerprint")
	}
}

func TestFingerprintTimestampSensitive(t *testing.T) {
	ids := []string{"a"}
	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Nanosecond)

	if Fingerprint(ids, t1) == Fingerprint(ids, t2) {
		t.Fatal("different cursor timestamps produced the same fingerprint")
	}
}

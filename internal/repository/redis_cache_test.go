package repository

import (
	"testing"
)

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decodeVector returned error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("index %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestDecodeVectorRejectsCorruptData(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a truncated blob")
	}
}

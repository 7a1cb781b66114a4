package protocol

import "testing"

func TestSignBody(t *testing.T) {
	body := []byte(`{"ruc":"1"}`)
	a := SignBody("key", body)
	if len(a) != 64 {
		t.Fatalf("signature length = %d, want 64", len(a))
	}
	if a != SignBody("key", body) {
		t.Error("signature is not deterministic")
	}
	if a == SignBody("other", body) {
		t.Error("different secrets produced the same signature")
	}
	if a == SignBody("key", []byte(`{"ruc":"2"}`)) {
		t.Error("different bodies produced the same signature")
	}
}

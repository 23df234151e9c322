package ratelimit

import "testing"

func TestResourceKeyScopedByPool(t *testing.T) {
	a := ResourceCPU.key("run-a")
	b := ResourceCPU.key("run-b")
	if a == b {
		t.Fatalf("expected distinct pools to produce distinct keys, got %q for both", a)
	}
	if ResourceCPU.key("p") == ResourceMemory.key("p") {
		t.Fatalf("expected distinct resources within a pool to produce distinct keys")
	}
}

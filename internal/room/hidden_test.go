package room

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHiddenPartitionSizesTrackSecrets(t *testing.T) {
	h := NewHiddenPartition(func(secret any) int { return len(secret.([]string)) })

	h.Set("a", []string{"S1", "H4"})
	h.Set("b", []string{"C9"})
	if h.Size("a") != 2 || h.Size("b") != 1 {
		t.Fatalf("sizes = %d/%d, want 2/1", h.Size("a"), h.Size("b"))
	}

	// N mutations: the projection must equal the true secret length after
	// every one.
	hand := []string{"S1", "H4"}
	for i := 0; i < 5; i++ {
		hand = append(hand, "D2")
		h.Set("a", hand)
		if h.Size("a") != len(hand) {
			t.Fatalf("after draw %d: Size = %d, want %d", i+1, h.Size("a"), len(hand))
		}
	}

	h.Delete("b")
	if h.Size("b") != 0 {
		t.Errorf("deleted owner still projects size %d", h.Size("b"))
	}
	if _, ok := h.Get("b"); ok {
		t.Error("deleted secret still retrievable")
	}
}

func TestHiddenPartitionProjectionLeaksNoSecrets(t *testing.T) {
	h := NewHiddenPartition(func(secret any) int { return len(secret.([]string)) })
	h.Set("a", []string{"SECRET-ACE", "SECRET-KING"})

	payload, err := json.Marshal(map[string]any{"hand_sizes": h.Sizes()})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(payload), "SECRET") {
		t.Errorf("broadcast projection leaked secret data: %s", payload)
	}

	// Mutating the returned copy must not touch the partition.
	sizes := h.Sizes()
	sizes["a"] = 99
	if h.Size("a") != 2 {
		t.Error("Sizes() returned a live reference to the internal map")
	}
}

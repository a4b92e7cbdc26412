package slot

import (
	"math/rand"
	"testing"
)

func TestHashSlotInRange(t *testing.T) {
	keys := []string{"foo", "bar", "{user1000}.following", "{user1000}.followers", ""}
	for _, k := range keys {
		s := HashSlot(k)
		if s < 0 || int(s) >= NumSlots {
			t.Fatalf("HashSlot(%q) = %d, out of [0,%d)", k, s, NumSlots)
		}
	}
}

func TestHashSlotHashTagsCollapseToSameSlot(t *testing.T) {
	a := HashSlot("{user1000}.following")
	b := HashSlot("{user1000}.followers")
	if a != b {
		t.Fatalf("keys sharing hash tag {user1000} landed on different slots: %d vs %d", a, b)
	}
}

func TestHashSlotEmptyTagFallsBackToWholeKey(t *testing.T) {
	// "{}foo" has an empty tag (nothing between the braces at the very
	// start), so the whole key "{}foo", braces included, is hashed.
	a := HashSlot("{}foo")
	b := Slot(crc16([]byte("{}foo")) % NumSlots)
	if a != b {
		t.Fatalf("empty hash tag should fall back to hashing the whole key: got %d vs %d", a, b)
	}
}

func TestHashSlotDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		buf := make([]byte, 1+r.Intn(32))
		for j := range buf {
			buf[j] = byte(r.Intn(256))
		}
		key := string(buf)
		if HashSlot(key) != HashSlot(key) {
			t.Fatalf("HashSlot not deterministic for key %q", key)
		}
	}
}

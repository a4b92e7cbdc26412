package slot

import (
	"math/rand"
	"testing"
)

func fullCoverage() Set {
	return Set{
		{Start: 0, End: 8191, Tag: Normal},
		{Start: 8192, End: 16383, Tag: Normal},
	}
}

func TestCoversFullAcceptsExactPartition(t *testing.T) {
	if !CoversFull(fullCoverage()) {
		t.Fatal("expected exact partition of [0,16384) to cover fully")
	}
}

func TestCoversFullRejectsGap(t *testing.T) {
	ranges := Set{
		{Start: 0, End: 8190, Tag: Normal},
		{Start: 8192, End: 16383, Tag: Normal},
	}
	if CoversFull(ranges) {
		t.Fatal("expected a gap at slot 8191 to fail coverage")
	}
}

func TestCoversFullRejectsOverlap(t *testing.T) {
	ranges := Set{
		{Start: 0, End: 8192, Tag: Normal},
		{Start: 8192, End: 16383, Tag: Normal},
	}
	if CoversFull(ranges) {
		t.Fatal("expected overlapping ranges at slot 8192 to fail coverage")
	}
}

func TestContainsAgreesWithBruteForce(t *testing.T) {
	ranges := Set{
		{Start: 100, End: 199, Tag: Normal},
		{Start: 5000, End: 5050, Tag: Normal},
	}
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 2000; i++ {
		key := string([]byte{byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256))})
		s := HashSlot(key)
		want := false
		for _, rg := range ranges {
			if s >= rg.Start && s <= rg.End {
				want = true
				break
			}
		}
		if got := ContainsSlot(ranges, s); got != want {
			t.Fatalf("ContainsSlot(%v, %d) = %v, want %v", ranges, s, got, want)
		}
	}
}

func TestSplitAtProducesAdjacentHalves(t *testing.T) {
	r := Range{Start: 0, End: 99, Tag: Normal}
	left, right, ok := SplitAt(r, 50)
	if !ok {
		t.Fatal("expected split to succeed")
	}
	if left.Start != 0 || left.End != 49 || right.Start != 50 || right.End != 99 {
		t.Fatalf("unexpected split halves: left=%+v right=%+v", left, right)
	}
}

func TestSplitAtRejectsOutOfBounds(t *testing.T) {
	r := Range{Start: 10, End: 10, Tag: Normal}
	if _, _, ok := SplitAt(r, 10); ok {
		t.Fatal("splitting a single-slot range at its own start must fail")
	}
	if _, _, ok := SplitAt(r, 11); ok {
		t.Fatal("splitting past End must fail")
	}
}

func TestMergeCoalescesAdjacentSameTagSameEpoch(t *testing.T) {
	meta := &MigrationMeta{Epoch: 7}
	ranges := Set{
		{Start: 0, End: 49, Tag: Migrating, Meta: meta},
		{Start: 50, End: 99, Tag: Migrating, Meta: meta},
	}
	merged := Merge(ranges)
	if len(merged) != 1 || merged[0].Start != 0 || merged[0].End != 99 {
		t.Fatalf("expected a single coalesced range, got %+v", merged)
	}
}

func TestMergeDoesNotCoalesceDifferentEpochs(t *testing.T) {
	ranges := Set{
		{Start: 0, End: 49, Tag: Migrating, Meta: &MigrationMeta{Epoch: 1}},
		{Start: 50, End: 99, Tag: Migrating, Meta: &MigrationMeta{Epoch: 2}},
	}
	merged := Merge(ranges)
	if len(merged) != 2 {
		t.Fatalf("expected ranges from different migration epochs to stay separate, got %+v", merged)
	}
}

func TestDisplayLexicographicFormat(t *testing.T) {
	ranges := Set{
		{Start: 100, End: 199, Tag: Normal},
		{Start: 0, End: 49, Tag: Normal},
		{Start: 50, End: 50, Tag: Normal},
	}
	got := Display(ranges)
	want := "0-49,50,100-199"
	if got != want {
		t.Fatalf("Display() = %q, want %q", got, want)
	}
}

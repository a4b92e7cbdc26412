package migration

import (
	"reflect"
	"testing"

	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/slot"
)

func TestSwitchArgRoundTrip(t *testing.T) {
	cases := []SwitchArg{
		{
			Version: UMCTLVersion,
			Meta: cluster.MigrationTaskMeta{
				DB: "c1",
				SlotRange: slot.Range{
					Start: 0, End: 8191, Tag: slot.Migrating,
					Meta: &slot.MigrationMeta{
						Epoch:    3,
						SrcProxy: "p1:6379",
						SrcNode:  "n1a",
						DstProxy: "p2:6379",
						DstNode:  "n2a",
					},
				},
			},
		},
		{
			Version: UMCTLVersion,
			Meta: cluster.MigrationTaskMeta{
				DB: "c2",
				SlotRange: slot.Range{
					Start: 8192, End: 16383, Tag: slot.Importing,
					Meta: &slot.MigrationMeta{
						Epoch:    1,
						SrcProxy: "p3:6379",
						SrcNode:  "n3a",
						DstProxy: "p4:6379",
						DstNode:  "n4a",
					},
				},
			},
		},
	}

	for _, want := range cases {
		got, err := ParseSwitchArg(want.Strings())
		if err != nil {
			t.Fatalf("ParseSwitchArg: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch:\n got:  %+v\n want: %+v", got, want)
		}
	}
}

func TestParseSwitchArgRejectsWrongFieldCount(t *testing.T) {
	if _, err := ParseSwitchArg([]string{"a", "b"}); err == nil {
		t.Fatal("expected an error for a malformed argument vector")
	}
}

func TestParseSwitchArgRejectsBadTag(t *testing.T) {
	args := []string{UMCTLVersion, "c1", "0", "100", "BOGUS", "1", "p1", "n1", "p2", "n2"}
	if _, err := ParseSwitchArg(args); err == nil {
		t.Fatal("expected an error for an unrecognized slot tag")
	}
}

package keys

import (
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestConvIndexKeysSortByTime(t *testing.T) {
	ks := []string{
		GenConvIndexKey("a|b", 1_000_000_000_000, 2),
		GenConvIndexKey("a|b", 999, 7),
		GenConvIndexKey("a|b", 1_000_000_000_000, 1),
	}
	sort.Strings(ks)
	want := []string{
		GenConvIndexKey("a|b", 999, 7),
		GenConvIndexKey("a|b", 1_000_000_000_000, 1),
		GenConvIndexKey("a|b", 1_000_000_000_000, 2),
	}
	for i := range want {
		if ks[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %q want %q", i, ks[i], want[i])
		}
	}
}

func TestPrefixEnd(t *testing.T) {
	end := string(PrefixEnd("c:a|b:"))
	if end != "c:a|b;" {
		t.Fatalf("unexpected prefix end %q", end)
	}
	if PrefixEnd("\xff") != nil {
		t.Fatalf("all-0xff prefix should have no upper bound")
	}
}

func TestParseUnreadKey(t *testing.T) {
	id := uuid.NewString()
	p, err := ParseUnreadKey(GenUnreadKey("bob", "alice", id))
	if err != nil {
		t.Fatalf("ParseUnreadKey: %v", err)
	}
	if p.Owner != "bob" || p.Peer != "alice" || p.MsgID != id {
		t.Fatalf("unexpected parts %+v", p)
	}
	if _, err := ParseUnreadKey("un:bob:alice"); err == nil {
		t.Fatalf("expected error for short key")
	}
	g, err := ParseUserGroupKey(GenUserGroupKey("bob", id))
	if err != nil || g != id {
		t.Fatalf("ParseUserGroupKey = %q, %v", g, err)
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"alice", "user-1", "a.b_c@x"} {
		if err := ValidateUserID(ok); err != nil {
			t.Fatalf("ValidateUserID(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a:b", "sp ace"} {
		if err := ValidateUserID(bad); err == nil {
			t.Fatalf("ValidateUserID(%q) should fail", bad)
		}
	}
	if err := ValidateID(uuid.NewString()); err != nil {
		t.Fatalf("ValidateID: %v", err)
	}
	if err := ValidateID("not-a-uuid"); err == nil {
		t.Fatalf("ValidateID should reject non-uuid")
	}
}

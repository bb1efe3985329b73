package campaign

import "testing"

func TestAddressRoundTrip(t *testing.T) {
	formatted := FormatAddress(testCreator)
	parsed, err := ParseAddress(formatted)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != testCreator {
		t.Fatalf("round trip mismatch: %x", parsed)
	}
	if _, err := ParseAddress("0xabc"); err == nil {
		t.Fatal("short address must be rejected")
	}
	if _, err := ParseAddress("not-hex"); err == nil {
		t.Fatal("non-hex address must be rejected")
	}
}

func TestIDRoundTrip(t *testing.T) {
	id := testCampaignID(3)
	parsed, err := ParseID(FormatID(id))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %x", parsed)
	}
	if _, err := ParseID("0x00"); err == nil {
		t.Fatal("short id must be rejected")
	}
}

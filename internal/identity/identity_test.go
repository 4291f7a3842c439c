package identity

import "testing"

func TestDerive_ExplicitIDWins(t *testing.T) {
	got := Derive("detector", "fixed-id", "my-name", "ipc:///tmp/a", []string{"ipc:///tmp/b"})
	if got.ID != "fixed-id" {
		t.Fatalf("expected explicit id to win, got %q", got.ID)
	}
	if got.Type != "detector" {
		t.Fatalf("unexpected type %q", got.Type)
	}
}

func TestDerive_FromNameIsDeterministic(t *testing.T) {
	a := Derive("detector", "", "my-name", "ipc:///tmp/a", nil)
	b := Derive("detector", "", "my-name", "ipc:///tmp/different", nil)
	if a.ID != b.ID {
		t.Fatalf("name-derived id must not depend on addresses: %q != %q", a.ID, b.ID)
	}

	c := Derive("parser", "", "my-name", "ipc:///tmp/a", nil)
	if a.ID == c.ID {
		t.Fatalf("different component_type must change the derived id")
	}
}

func TestDerive_FromAddressesIsDeterministic(t *testing.T) {
	a := Derive("detector", "", "", "ipc:///tmp/a", []string{"ipc:///tmp/b", "ipc:///tmp/c"})
	b := Derive("detector", "", "", "ipc:///tmp/a", []string{"ipc:///tmp/b", "ipc:///tmp/c"})
	if a.ID != b.ID {
		t.Fatalf("address-derived id must be stable across calls: %q != %q", a.ID, b.ID)
	}

	c := Derive("detector", "", "", "ipc:///tmp/a", []string{"ipc:///tmp/b"})
	if a.ID == c.ID {
		t.Fatalf("changing out_addr list must change the derived id")
	}
}

package listing

import "testing"

func TestLabelFor(t *testing.T) {
	cases := map[Status]string{
		StatusAvailable:       "Available",
		StatusSold:            "Sold",
		StatusPending:         "Pending Approval",
		Status("under_offer"): "Under Offer",
		Status("RE-LISTED"):   "Re Listed",
		Status(""):            "",
	}
	for status, want := range cases {
		if got := LabelFor(status); got != want {
			t.Errorf("LabelFor(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestInfo_UnknownDegrades(t *testing.T) {
	info, ok := Info(Status("archived"))
	if ok {
		t.Fatal("expected archived to be unknown")
	}
	if info.Label != "Archived" || info.Color != "default" {
		t.Fatalf("unexpected fallback info: %+v", info)
	}
	if info.Order != len(Statuses()) {
		t.Fatalf("expected unknown statuses to sort last, got order %d", info.Order)
	}
}

func TestStatuses_Ordered(t *testing.T) {
	got := Statuses()
	want := []Status{StatusPending, StatusAvailable, StatusActive, StatusSold, StatusRented, StatusLeased, StatusRejected}
	if len(got) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], got[i])
		}
	}
}

func TestColorFor(t *testing.T) {
	if ColorFor(StatusRejected) != "destructive" {
		t.Fatalf("expected rejected to be destructive, got %s", ColorFor(StatusRejected))
	}
	if ColorFor(StatusRented) != "info" {
		t.Fatalf("expected rented to be info, got %s", ColorFor(StatusRented))
	}
}

func TestListingType_Normalize(t *testing.T) {
	cases := map[ListingType]ListingType{
		"":        ListingTypeSale,
		"  ":      ListingTypeSale,
		"Rent":    ListingTypeRent,
		"lease":   ListingTypeLease,
		"Auction": ListingType("auction"),
	}
	for in, want := range cases {
		if got := in.Normalize(); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

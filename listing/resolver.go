package listing

// Target is the single legal next action for a property.
type Target struct {
	Status           Status
	RequiresCustomer bool
	IsRevert         bool
}

// Resolve computes the next action for a property from its current status and
// listing type. It returns false when no action exists, which is always the
// case for sold properties.
//
// Rules apply in order: an occupied rent/lease listing reverts to available;
// otherwise the listing type picks the forward status. Unknown listing types
// fall back to sold without demanding a customer.
func Resolve(current Status, listingType ListingType) (Target, bool) {
	if current.IsTerminal() {
		return Target{}, false
	}

	lt := listingType.Normalize()
	switch {
	case current == StatusRented && lt == ListingTypeRent:
		return Target{Status: StatusAvailable, IsRevert: true}, true
	case current == StatusLeased && lt == ListingTypeLease:
		return Target{Status: StatusAvailable, IsRevert: true}, true
	}

	switch lt {
	case ListingTypeSale:
		return Target{Status: StatusSold, RequiresCustomer: true}, true
	case ListingTypeRent:
		return Target{Status: StatusRented, RequiresCustomer: true}, true
	case ListingTypeLease:
		return Target{Status: StatusLeased, RequiresCustomer: true}, true
	default:
		return Target{Status: StatusSold}, true
	}
}

// Enabled reports whether the target may be acted on right now. Reverts are
// always enabled; forward transitions need an approved (available) listing.
// This is a display guard only; Service.UpdateStatus enforces it again.
func Enabled(current Status, t Target) bool {
	if t.IsRevert {
		return true
	}
	return current == StatusAvailable
}

// ActionLabel is the button text for the target.
func (t Target) ActionLabel() string {
	return "Mark as " + LabelFor(t.Status)
}

// Action bundles the resolver output for presentation layers.
type Action struct {
	Target  Target
	Label   string
	Enabled bool
}

// ActionFor resolves the action for p. It returns false when none exists.
func ActionFor(p Property) (Action, bool) {
	t, ok := Resolve(p.Status, p.ListingType)
	if !ok {
		return Action{}, false
	}
	return Action{Target: t, Label: t.ActionLabel(), Enabled: Enabled(p.Status, t)}, true
}

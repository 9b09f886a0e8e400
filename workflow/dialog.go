package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"squares/customer"
	"squares/listing"
	"squares/notify"
)

// Phase is the dialog's position in the status-change flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActionChosen
	PhaseSubmitting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActionChosen:
		return "action_chosen"
	case PhaseSubmitting:
		return "submitting"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the user-editable state of one dialog.
type State struct {
	SelectedStatus      listing.Status
	Reason              string
	SelectedCustomerID  string
	CustomerSearchQuery string
	Updating            bool
	LoadingCustomers    bool
}

// Dialog drives one property through resolve, customer pick and submit.
//
// A Dialog is safe for concurrent use, but it models a single user: at most
// one submission is in flight and a second Submit while updating is a no-op.
// Closing or reopening the dialog does not cancel a running submission; its
// toast still fires, but its result no longer touches the dialog.
type Dialog struct {
	executor  *Executor
	customers customer.Source
	fields    []customer.MatchField
	filter    customer.Filter
	notifier  notify.Sink
	logger    *zap.Logger

	mu         sync.Mutex
	open       bool
	phase      Phase
	property   listing.Property
	target     listing.Target
	state      State
	picker     *customer.Picker
	lastErr    error
	generation uint64
}

// NewDialog builds a closed dialog. customers may be nil when no forward
// transition will ever need a customer.
func NewDialog(executor *Executor, customers customer.Source) *Dialog {
	return &Dialog{
		executor:  executor,
		customers: customers,
		fields:    customer.DefaultMatchFields,
		filter:    customer.Filter{Status: "active"},
		notifier:  notify.Discard,
		logger:    zap.NewNop(),
		phase:     PhaseClosed,
	}
}

// WithNotifier sets the toast sink.
func (d *Dialog) WithNotifier(n notify.Sink) *Dialog {
	if n != nil {
		d.notifier = n
	}
	return d
}

// WithMatchFields sets the customer fields searched by the picker.
func (d *Dialog) WithMatchFields(fields []customer.MatchField) *Dialog {
	if len(fields) > 0 {
		d.fields = fields
	}
	return d
}

// WithCustomerFilter sets the server-side filter applied when customers load.
func (d *Dialog) WithCustomerFilter(f customer.Filter) *Dialog {
	d.filter = f
	return d
}

func (d *Dialog) WithLogger(logger *zap.Logger) *Dialog {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Open shows the dialog for p. Opening for a different property, or after a
// close, starts from a fresh state; reopening the property already shown
// only refreshes its snapshot.
func (d *Dialog) Open(p listing.Property) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open && d.property.ID == p.ID {
		d.property = p
		return
	}
	d.resetLocked()
	d.open = true
	d.phase = PhaseIdle
	d.property = p
}

// Close hides the dialog and discards its state.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Dialog) resetLocked() {
	d.generation++
	d.open = false
	d.phase = PhaseClosed
	d.property = listing.Property{}
	d.target = listing.Target{}
	d.state = State{}
	d.picker = nil
	d.lastErr = nil
}

// IsOpen reports whether the dialog is showing.
func (d *Dialog) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialog) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// State returns a copy of the current state.
func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Property returns the property the dialog is open for.
func (d *Dialog) Property() listing.Property {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.property
}

// Err returns the error from the last failed submission, if any.
func (d *Dialog) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Target returns the confirmed action.
func (d *Dialog) Target() (listing.Target, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != PhaseActionChosen && d.phase != PhaseSubmitting {
		return listing.Target{}, false
	}
	return d.target, true
}

// Action returns the single action offered for the open property.
func (d *Dialog) Action() (listing.Action, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return listing.Action{}, false
	}
	return listing.ActionFor(d.property)
}

// ConfirmAction chooses the resolver's action. For a forward transition the
// candidate customers are fetched now, once. A failed fetch returns a
// *LoadError and raises a warning toast but leaves the action chosen; calling
// ConfirmAction again retries the fetch.
func (d *Dialog) ConfirmAction(ctx context.Context) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrNotOpen
	}
	switch d.phase {
	case PhaseSubmitting:
		d.mu.Unlock()
		return ErrBusy
	case PhaseIdle:
		action, ok := listing.ActionFor(d.property)
		if !ok {
			d.mu.Unlock()
			return ErrNoAction
		}
		if !action.Enabled {
			d.mu.Unlock()
			return ErrActionDisabled
		}
		d.target = action.Target
		d.state.SelectedStatus = action.Target.Status
		d.phase = PhaseActionChosen
	}

	if d.target.IsRevert || d.customers == nil {
		d.mu.Unlock()
		return nil
	}
	if d.picker == nil {
		d.picker = customer.NewPicker(d.customers, d.fields).WithFilter(d.filter)
	}
	picker := d.picker
	if picker.Loaded() {
		d.mu.Unlock()
		return nil
	}
	gen := d.generation
	d.state.LoadingCustomers = true
	propertyID := d.property.ID
	d.mu.Unlock()

	err := picker.Load(ctx)

	d.mu.Lock()
	if gen == d.generation {
		d.state.LoadingCustomers = false
	}
	d.mu.Unlock()

	if err != nil {
		loadErr := &LoadError{Err: err}
		d.logger.Warn("customer list failed to load", zap.String("property_id", propertyID), zap.Error(err))
		d.notifier.Notify(ctx, notify.Toast{
			Level:      notify.LevelWarning,
			Title:      "Could not load customers",
			Message:    err.Error(),
			PropertyID: propertyID,
		})
		return loadErr
	}
	return nil
}

// SetReason records the optional free-text reason.
func (d *Dialog) SetReason(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return err
	}
	d.state.Reason = reason
	return nil
}

// SearchCustomers filters the loaded candidates. It returns an empty slice,
// never an error, when nothing matches or nothing is loaded.
func (d *Dialog) SearchCustomers(query string) []customer.Customer {
	d.mu.Lock()
	if d.editableLocked() != nil || d.picker == nil {
		d.mu.Unlock()
		return []customer.Customer{}
	}
	d.state.CustomerSearchQuery = query
	picker := d.picker
	d.mu.Unlock()
	return picker.Search(query)
}

// SelectCustomer picks exactly one customer from the loaded candidates.
func (d *Dialog) SelectCustomer(id string) (customer.Customer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return customer.Customer{}, err
	}
	if d.picker == nil {
		return customer.Customer{}, fmt.Errorf("%w: %s", customer.ErrUnknownCustomer, id)
	}
	c, err := d.picker.Select(id)
	if err != nil {
		return customer.Customer{}, err
	}
	d.state.SelectedCustomerID = c.ID
	return c, nil
}

// ClearCustomer drops the selection and reopens the search.
func (d *Dialog) ClearCustomer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return err
	}
	if d.picker != nil {
		d.picker.Clear()
	}
	d.state.SelectedCustomerID = ""
	d.state.CustomerSearchQuery = ""
	return nil
}

func (d *Dialog) editableLocked() error {
	switch {
	case !d.open:
		return ErrNotOpen
	case d.phase == PhaseSubmitting:
		return ErrBusy
	case d.phase != PhaseActionChosen:
		return ErrNoActionChosen
	}
	return nil
}

// CanSubmit reports whether Submit would reach the network.
func (d *Dialog) CanSubmit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.phase != PhaseActionChosen || d.state.Updating {
		return false
	}
	return !d.target.RequiresCustomer || d.state.SelectedCustomerID != ""
}

// Submit sends the confirmed action. While a submission is in flight a
// second call returns nil without doing anything. On success the dialog
// closes; on failure it returns to the chosen action with every field
// intact and the error attached.
func (d *Dialog) Submit(ctx context.Context) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrNotOpen
	}
	if d.state.Updating || d.phase == PhaseSubmitting {
		d.mu.Unlock()
		return nil
	}
	if d.phase != PhaseActionChosen {
		d.mu.Unlock()
		return ErrNoActionChosen
	}

	target := d.target
	propertyID := d.property.ID
	customerID := d.state.SelectedCustomerID
	reason := d.state.Reason

	if target.RequiresCustomer && customerID == "" {
		err := errCustomerRequired()
		d.lastErr = err
		d.mu.Unlock()
		d.toastError(ctx, propertyID, err)
		return err
	}

	gen := d.generation
	d.phase = PhaseSubmitting
	d.state.Updating = true
	d.lastErr = nil
	d.mu.Unlock()

	err := d.executor.Execute(ctx, propertyID, target, customerID, reason)

	d.mu.Lock()
	current := gen == d.generation
	if current {
		if err != nil {
			d.phase = PhaseActionChosen
			d.state.Updating = false
			d.lastErr = err
		} else {
			d.resetLocked()
		}
	}
	d.mu.Unlock()

	if !current {
		d.logger.Info("submission finished after dialog closed",
			zap.String("property_id", propertyID), zap.Bool("ok", err == nil))
	}
	if err != nil {
		d.toastError(ctx, propertyID, err)
		return err
	}
	d.notifier.Notify(ctx, notify.Toast{
		Level:      notify.LevelSuccess,
		Title:      "Status updated",
		Message:    "Property marked as " + listing.LabelFor(target.Status),
		PropertyID: propertyID,
	})
	return nil
}

func (d *Dialog) toastError(ctx context.Context, propertyID string, err error) {
	title := "Update failed"
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		title = "Missing information"
	}
	d.notifier.Notify(ctx, notify.Toast{
		Level:      notify.LevelError,
		Title:      title,
		Message:    err.Error(),
		PropertyID: propertyID,
	})
}

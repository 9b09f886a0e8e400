package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"squares/auth"
)

var (
	vendorActor = Actor{ID: "vendor-1", Role: auth.RoleVendor}
	adminActor  = Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

func TestUpdateStatus_SaleRequiresCustomer(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingTypeSale})
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusSold},
	})
	if !errors.Is(err, ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
	if pool.tx.committed {
		t.Fatal("expected no commit without a customer")
	}
	if repo.props["p1"].Status != StatusAvailable {
		t.Fatalf("expected status unchanged, got %s", repo.props["p1"].Status)
	}
}

func TestUpdateStatus_SaleWithCustomer(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Title: "Loft", Status: StatusAvailable, ListingType: ListingTypeSale})
	repo.customers["c7"] = true
	outbox := &fakeOutbox{}
	svc := NewService(pool, repo, outbox)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusSold, CustomerID: " c7 ", Reason: "closed escrow"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusSold {
		t.Fatalf("expected sold, got %s", updated.Status)
	}
	if updated.AssignedCustomerID == nil || *updated.AssignedCustomerID != "c7" {
		t.Fatalf("expected customer c7 assigned, got %v", updated.AssignedCustomerID)
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
	if repo.opened["p1"] != TransactionSale {
		t.Fatalf("expected sale transaction opened, got %q", repo.opened["p1"])
	}
	if len(repo.history) != 1 || repo.history[0].PreviousStatus != StatusAvailable || *repo.history[0].Reason != "closed escrow" {
		t.Fatalf("unexpected history: %+v", repo.history)
	}
	if len(outbox.messages) != 1 || outbox.messages[0].topic != OutboxTopicStatusChanged {
		t.Fatalf("expected one status_changed message, got %+v", outbox.messages)
	}
	if outbox.messages[0].payload["customer_id"] != "c7" {
		t.Fatalf("expected customer in payload, got %v", outbox.messages[0].payload)
	}
}

func TestUpdateStatus_RevertIgnoresCustomer(t *testing.T) {
	customer := "c3"
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p2", VendorID: "vendor-1", Status: StatusRented, ListingType: ListingTypeRent, AssignedCustomerID: &customer})
	svc := NewService(pool, repo, &fakeOutbox{})

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   adminActor,
		Request: TransitionRequest{PropertyID: "p2", NewStatus: StatusAvailable, CustomerID: "c9"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusAvailable || updated.AssignedCustomerID != nil {
		t.Fatalf("expected available and unassigned, got %+v", updated)
	}
	if !repo.closed["p2"] {
		t.Fatal("expected open transaction to be closed")
	}
	if repo.customerChecks != 0 {
		t.Fatalf("expected no customer lookup on revert, got %d", repo.customerChecks)
	}
	if repo.history[0].CustomerID != nil {
		t.Fatal("expected revert history without customer")
	}
}

func TestUpdateStatus_RejectsStatusOtherThanTarget(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingTypeSale})
	repo.customers["c1"] = true
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusRented, CustomerID: "c1"},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatus_SoldIsTerminal(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusSold, ListingType: ListingTypeSale})
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   adminActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusAvailable},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatus_PendingListingDisabled(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusPending, ListingType: ListingTypeLease})
	repo.customers["c1"] = true
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusLeased, CustomerID: "c1"},
	})
	if !errors.Is(err, ErrTransitionDisabled) {
		t.Fatalf("expected ErrTransitionDisabled, got %v", err)
	}
}

func TestUpdateStatus_UnknownCustomer(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingTypeRent})
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusRented, CustomerID: "ghost"},
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestUpdateStatus_CustomTypeWithoutCustomer(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingType("auction")})
	svc := NewService(pool, repo, &fakeOutbox{})

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusSold},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusSold {
		t.Fatalf("expected sold, got %s", updated.Status)
	}
	if _, ok := repo.opened["p1"]; ok {
		t.Fatal("expected no transaction without a customer")
	}
}

func TestUpdateStatus_CustomTypeIgnoresCustomer(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingType("auction")})
	repo.customers["c1"] = true
	svc := NewService(pool, repo, &fakeOutbox{})

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusSold, CustomerID: "c1"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.AssignedCustomerID != nil {
		t.Fatalf("expected no assigned customer, got %q", *updated.AssignedCustomerID)
	}
	if _, ok := repo.opened["p1"]; ok {
		t.Fatal("expected no transaction for a custom listing type")
	}
	if repo.customerChecks != 0 {
		t.Fatalf("expected no customer lookup, got %d", repo.customerChecks)
	}
	if len(repo.history) != 1 || repo.history[0].CustomerID != nil {
		t.Fatalf("expected one history row without customer, got %+v", repo.history)
	}
}

func TestUpdateStatus_Authorization(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		want  error
	}{
		{"other vendor", Actor{ID: "vendor-2", Role: auth.RoleVendor}, ErrForbidden},
		{"customer", Actor{ID: "c1", Role: auth.RoleCustomer}, ErrForbidden},
		{"anonymous", Actor{Role: auth.RoleAdmin}, ErrForbidden},
		{"sub admin", Actor{ID: "s1", Role: auth.RoleSubAdmin}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pool := &fakePool{}
			repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingTypeSale})
			repo.customers["c1"] = true
			svc := NewService(pool, repo, &fakeOutbox{})

			_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
				Actor:   tc.actor,
				Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusSold, CustomerID: "c1"},
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateStatus_IdempotentReplay(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusSold, ListingType: ListingTypeSale})
	repo.insertErr = ErrDuplicateIdempotencyKey
	outbox := &fakeOutbox{}
	svc := NewService(pool, repo, outbox)

	got, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:          vendorActor,
		Request:        TransitionRequest{PropertyID: "p1", NewStatus: StatusSold, CustomerID: "c1"},
		IdempotencyKey: "req-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Status != StatusSold {
		t.Fatalf("expected current property returned, got %+v", got)
	}
	if !pool.tx.rolled || pool.tx.committed {
		t.Fatal("expected rollback without commit on replay")
	}
	if len(outbox.messages) != 0 {
		t.Fatal("expected no outbox message on replay")
	}
}

func TestUpdateStatus_AlreadyAssigned(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo(Property{ID: "p1", VendorID: "vendor-1", Status: StatusAvailable, ListingType: ListingTypeLease})
	repo.customers["c1"] = true
	repo.openErr = ErrAlreadyAssigned
	svc := NewService(pool, repo, &fakeOutbox{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusParams{
		Actor:   vendorActor,
		Request: TransitionRequest{PropertyID: "p1", NewStatus: StatusLeased, CustomerID: "c1"},
	})
	if !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	if pool.tx.committed {
		t.Fatal("expected no commit")
	}
}

func TestHistory_MissingProperty(t *testing.T) {
	svc := NewService(&fakePool{}, newFakeRepo(), nil)
	if _, err := svc.History(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeRepo struct {
	props          map[string]Property
	customers      map[string]bool
	opened         map[string]TransactionKind
	closed         map[string]bool
	history        []HistoryEntry
	insertErr      error
	openErr        error
	customerChecks int
}

func newFakeRepo(props ...Property) *fakeRepo {
	r := &fakeRepo{
		props:     map[string]Property{},
		customers: map[string]bool{},
		opened:    map[string]TransactionKind{},
		closed:    map[string]bool{},
	}
	for _, p := range props {
		r.props[p.ID] = p
	}
	return r
}

func (f *fakeRepo) Get(ctx context.Context, id string) (Property, error) {
	p, ok := f.props[id]
	if !ok {
		return Property{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) List(ctx context.Context, filters Filters) ([]Property, int, error) {
	out := make([]Property, 0, len(f.props))
	for _, p := range f.props {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeRepo) History(ctx context.Context, propertyID string) ([]HistoryEntry, error) {
	return f.history, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, customerID *string) (Property, error) {
	p, ok := f.props[id]
	if !ok {
		return Property{}, ErrNotFound
	}
	p.Status = status
	p.AssignedCustomerID = customerID
	f.props[id] = p
	return p, nil
}

func (f *fakeRepo) CustomerExists(ctx context.Context, tx pgx.Tx, customerID string) (bool, error) {
	f.customerChecks++
	return f.customers[customerID], nil
}

func (f *fakeRepo) OpenTransaction(ctx context.Context, tx pgx.Tx, propertyID, customerID string, kind TransactionKind) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened[propertyID] = kind
	return nil
}

func (f *fakeRepo) CloseTransaction(ctx context.Context, tx pgx.Tx, propertyID string) error {
	f.closed[propertyID] = true
	return nil
}

func (f *fakeRepo) AppendHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error {
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeRepo) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	return f.insertErr
}

type outboxMessage struct {
	topic   string
	payload map[string]any
}

type fakeOutbox struct {
	messages []outboxMessage
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.messages = append(f.messages, outboxMessage{topic: topic, payload: payload})
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

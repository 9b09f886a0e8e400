package customer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownCustomer signals a selection outside the loaded candidates.
var ErrUnknownCustomer = errors.New("customer: not among loaded candidates")

// Filter narrows a customer listing. Status is the account status, empty for any.
type Filter struct {
	Query  string
	Status string
	Limit  int
}

// Source lists customer accounts. It is satisfied by the PostgreSQL directory
// and by the REST client.
type Source interface {
	ListCustomers(ctx context.Context, filter Filter) ([]Customer, error)
}

// Picker resolves a human-readable customer identity to a customer id. The
// candidate list is fetched once, on first Load, and searched locally.
type Picker struct {
	source Source
	fields []MatchField
	filter Filter
	group  singleflight.Group

	mu         sync.Mutex
	loaded     bool
	candidates []Customer
	selected   *Customer
}

// NewPicker creates a picker over source. A nil or empty fields slice selects
// DefaultMatchFields.
func NewPicker(source Source, fields []MatchField) *Picker {
	if len(fields) == 0 {
		fields = DefaultMatchFields
	}
	return &Picker{source: source, fields: fields}
}

// WithFilter sets the server-side filter used on load.
func (p *Picker) WithFilter(f Filter) *Picker {
	p.filter = f
	return p
}

// Load fetches the candidate list unless it is already loaded. Concurrent
// calls share one fetch. A failed load leaves the picker empty so a later call
// retries.
func (p *Picker) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	_, err, _ := p.group.Do("customers", func() (any, error) {
		p.mu.Lock()
		done := p.loaded
		p.mu.Unlock()
		if done {
			return nil, nil
		}
		list, err := p.source.ListCustomers(ctx, p.filter)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.candidates = list
		p.loaded = true
		p.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("customer: load candidates: %w", err)
	}
	return nil
}

// Loaded reports whether the candidate list has been fetched.
func (p *Picker) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Search returns the candidates matching query, in load order. It never
// fails; no matches or no candidates yields an empty slice.
func (p *Picker) Search(query string) []Customer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Customer, 0, len(p.candidates))
	for _, c := range p.candidates {
		if Matches(c, query, p.fields) {
			out = append(out, c)
		}
	}
	return out
}

// Select makes id the single selected customer, replacing any previous one.
func (p *Picker) Select(id string) (Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.candidates {
		if p.candidates[i].ID == id {
			c := p.candidates[i]
			p.selected = &c
			return c, nil
		}
	}
	return Customer{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, id)
}

// Selected returns the current selection.
func (p *Picker) Selected() (Customer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return Customer{}, false
	}
	return *p.selected, true
}

// Clear drops the selection so search is open again.
func (p *Picker) Clear() {
	p.mu.Lock()
	p.selected = nil
	p.mu.Unlock()
}

package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"squares/apiclient"
	"squares/auth"
	"squares/customer"
	"squares/listing"
	"squares/moderation"
	"squares/vendors"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func newUserResponse(u auth.User) userResponse {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
		Phone:     deref(u.Phone),
		Status:    u.Status,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type registerRequest struct {
	auth.RegisterRequest
	CompanyName string `json:"companyName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	user, err := s.authService.Register(r.Context(), req.RegisterRequest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if user.Role == auth.RoleVendor && s.vendors != nil {
		company := strings.TrimSpace(req.CompanyName)
		if company == "" {
			company = user.Email
		}
		if err := s.vendors.Ensure(r.Context(), user.ID, company); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	writeData(w, http.StatusCreated, newUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return
	}
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  newUserResponse(result.User),
	})
}

// handleUsers lists customer accounts for the customer picker.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !actor.Role.IsStaff() && actor.Role != auth.RoleVendor {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if s.customers == nil {
		writeError(w, http.StatusServiceUnavailable, "customer directory unavailable")
		return
	}
	if role := r.URL.Query().Get("role"); role != "" && role != string(auth.RoleCustomer) {
		writeError(w, http.StatusBadRequest, "only role=customer is supported")
		return
	}

	q := r.URL.Query()
	list, err := s.customers.ListCustomers(r.Context(), customer.Filter{
		Query:  q.Get("q"),
		Status: q.Get("status"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []customer.Customer{}
	}
	writeData(w, http.StatusOK, apiclient.Users{Users: list})
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.listingService == nil {
		writeError(w, http.StatusServiceUnavailable, "listing service unavailable")
		return
	}

	q := r.URL.Query()
	filters := listing.Filters{
		VendorID:    q.Get("vendorId"),
		Status:      listing.Status(q.Get("status")),
		ListingType: listing.ListingType(q.Get("listingType")),
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "pageSize", 20),
		SortKey:     q.Get("sortKey"),
		SortOrder:   q.Get("sortOrder"),
	}
	if filters.Status != "" && !filters.Status.IsKnown() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	if actor.Role == auth.RoleVendor {
		filters.VendorID = actor.ID
	}

	items, total, err := s.listingService.List(r.Context(), filters)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]apiclient.Property, 0, len(items))
	for _, p := range items {
		out = append(out, apiclient.PropertyFrom(p))
	}
	writeData(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

// loadProperty fetches the {id} property and applies vendor ownership.
func (s *Server) loadProperty(w http.ResponseWriter, r *http.Request) (listing.Property, listing.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return listing.Property{}, listing.Actor{}, false
	}
	if s.listingService == nil {
		writeError(w, http.StatusServiceUnavailable, "listing service unavailable")
		return listing.Property{}, listing.Actor{}, false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing property id")
		return listing.Property{}, listing.Actor{}, false
	}
	p, err := s.listingService.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return listing.Property{}, listing.Actor{}, false
	}
	if actor.Role == auth.RoleVendor && p.VendorID != actor.ID {
		writeError(w, http.StatusForbidden, "forbidden")
		return listing.Property{}, listing.Actor{}, false
	}
	return p, actor, true
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.loadProperty(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, apiclient.PropertyFrom(p))
}

func (s *Server) handleStatusAction(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.loadProperty(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, apiclient.ActionFrom(listing.ActionFor(p)))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, _, ok := s.loadProperty(w, r)
	if !ok {
		return
	}
	entries, err := s.listingService.History(r.Context(), p.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]apiclient.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, apiclient.HistoryFrom(e))
	}
	writeData(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.listingService == nil {
		writeError(w, http.StatusServiceUnavailable, "listing service unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing property id")
		return
	}

	var body apiclient.StatusUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	status := listing.Status(strings.TrimSpace(body.Status))
	if !status.IsKnown() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	updated, err := s.listingService.UpdateStatus(r.Context(), listing.UpdateStatusParams{
		Actor: actor,
		Request: listing.TransitionRequest{
			PropertyID: id,
			NewStatus:  status,
			CustomerID: body.CustomerID,
			Reason:     body.Reason,
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Info("property status updated",
		zap.String("property_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("actor_id", actor.ID))
	writeData(w, http.StatusOK, apiclient.PropertyFrom(updated))
}

type moderationResponse struct {
	Property apiclient.Property `json:"property"`
	Decision string             `json:"decision"`
	Previous string             `json:"previous"`
	Reason   string             `json:"reason,omitempty"`
	At       string             `json:"at"`
}

func newModerationResponse(rec moderation.Record) moderationResponse {
	return moderationResponse{
		Property: apiclient.PropertyFrom(rec.Property),
		Decision: string(rec.Decision),
		Previous: string(rec.Previous),
		Reason:   rec.Reason,
		At:       rec.At.UTC().Format(time.RFC3339),
	}
}

func (s *Server) moderationActor(w http.ResponseWriter, r *http.Request) (listing.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return listing.Actor{}, false
	}
	if s.moderationService == nil {
		writeError(w, http.StatusServiceUnavailable, "moderation service unavailable")
		return listing.Actor{}, false
	}
	return actor, true
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.moderationActor(w, r)
	if !ok {
		return
	}
	items, err := s.moderationService.Pending(r.Context(), actor, queryInt(r, "limit", 50))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]apiclient.Property, 0, len(items))
	for _, p := range items {
		out = append(out, apiclient.PropertyFrom(p))
	}
	writeData(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.moderationActor(w, r)
	if !ok {
		return
	}
	rec, err := s.moderationService.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newModerationResponse(rec))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.moderationActor(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	rec, err := s.moderationService.Reject(r.Context(), actor, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newModerationResponse(rec))
}

type vendorResponse struct {
	UserID      string         `json:"userId"`
	Email       string         `json:"email"`
	CompanyName string         `json:"companyName"`
	Verified    bool           `json:"verified"`
	Listings    map[string]int `json:"listings"`
	Occupied    int            `json:"occupied"`
	CreatedAt   string         `json:"createdAt"`
}

func newVendorResponse(p vendors.Profile) vendorResponse {
	counts := make(map[string]int, len(p.Listings))
	for status, n := range p.Listings {
		counts[string(status)] = n
	}
	return vendorResponse{
		UserID:      p.UserID,
		Email:       p.Email,
		CompanyName: p.CompanyName,
		Verified:    p.Verified,
		Listings:    counts,
		Occupied:    p.Occupied(),
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.vendorService == nil {
		writeError(w, http.StatusServiceUnavailable, "vendor service unavailable")
		return
	}
	profiles, err := s.vendorService.List(r.Context(), actor, queryInt(r, "limit", 50))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]vendorResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, newVendorResponse(p))
	}
	writeData(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleVendor(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.vendorService == nil {
		writeError(w, http.StatusServiceUnavailable, "vendor service unavailable")
		return
	}
	profile, err := s.vendorService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, vendors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vendor not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newVendorResponse(profile))
}

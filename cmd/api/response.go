package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"squares/auth"
	"squares/listing"
	"squares/moderation"
	"squares/vendors"
)

var nowFunc = time.Now

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, listing.ErrNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, vendors.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, listing.ErrForbidden),
		errors.Is(err, moderation.ErrForbidden),
		errors.Is(err, vendors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, listing.ErrInvalidTransition),
		errors.Is(err, listing.ErrTransitionDisabled),
		errors.Is(err, listing.ErrAlreadyAssigned),
		errors.Is(err, moderation.ErrBadStatus),
		errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, listing.ErrCustomerRequired),
		errors.Is(err, listing.ErrCustomerNotFound),
		errors.Is(err, moderation.ErrReasonRequired),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrEmailRequired),
		errors.Is(err, auth.ErrInvalidRole):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops the package prefix from a domain error.
func publicMessage(err error) string {
	msg := err.Error()
	if prefix, rest, ok := strings.Cut(msg, ": "); ok && !strings.ContainsAny(prefix, " ") {
		return rest
	}
	return msg
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, publicMessage(err))
}

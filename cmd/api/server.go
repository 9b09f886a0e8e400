package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"squares/auth"
	"squares/customer"
	"squares/listing"
	"squares/moderation"
	"squares/vendors"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Claims, error)
}

type listingService interface {
	Get(ctx context.Context, id string) (listing.Property, error)
	List(ctx context.Context, filters listing.Filters) ([]listing.Property, int, error)
	History(ctx context.Context, propertyID string) ([]listing.HistoryEntry, error)
	UpdateStatus(ctx context.Context, params listing.UpdateStatusParams) (listing.Property, error)
}

type moderationService interface {
	Pending(ctx context.Context, actor listing.Actor, limit int) ([]listing.Property, error)
	Approve(ctx context.Context, actor listing.Actor, propertyID string) (moderation.Record, error)
	Reject(ctx context.Context, actor listing.Actor, propertyID, reason string) (moderation.Record, error)
}

type vendorService interface {
	Get(ctx context.Context, actor listing.Actor, id string) (vendors.Profile, error)
	List(ctx context.Context, actor listing.Actor, limit int) ([]vendors.Profile, error)
}

type vendorEnsurer interface {
	Ensure(ctx context.Context, userID, companyName string) error
}

// Server holds the HTTP handlers. Nil services answer 503.
type Server struct {
	authService       authService
	listingService    listingService
	customers         customer.Source
	moderationService moderationService
	vendorService     vendorService
	vendors           vendorEnsurer
	notifications     http.Handler
	logger            *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Routes assembles the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/api/users", s.handleUsers)

		r.Route("/api/properties", func(r chi.Router) {
			r.Get("/", s.handleProperties)
			r.Get("/pending", s.handlePending)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleProperty)
				r.Get("/status-action", s.handleStatusAction)
				r.Patch("/status", s.handleUpdateStatus)
				r.Get("/history", s.handleHistory)
				r.Post("/approve", s.handleApprove)
				r.Post("/reject", s.handleReject)
			})
		})

		r.Get("/api/vendors", s.handleVendors)
		r.Get("/api/vendors/{id}", s.handleVendor)

		if s.notifications != nil {
			r.Get("/api/notifications/ws", s.notifications.ServeHTTP)
		}
	})

	return r
}

// authenticate accepts a bearer token, or an access_token query parameter for
// WebSocket clients that cannot set headers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authService == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}
		token := ""
		if header := r.Header.Get("Authorization"); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			token = strings.TrimSpace(value)
		} else {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := nowFunc()
		next.ServeHTTP(ww, r)
		s.log().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", nowFunc().Sub(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log().Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// actorFrom reads the identity stored by authenticate.
func actorFrom(r *http.Request) (listing.Actor, bool) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	if userID == "" {
		return listing.Actor{}, false
	}
	return listing.Actor{ID: userID, Role: role}, true
}

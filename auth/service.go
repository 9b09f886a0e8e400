package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrEmailRequired signals a registration without an email.
	ErrEmailRequired = errors.New("auth: email is required")
	// ErrInvalidRole signals an unknown or non-registrable role.
	ErrInvalidRole = errors.New("auth: invalid role")
)

const defaultTokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID string
	Role   Role
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  defaultTokenTTL,
		now:       time.Now,
	}
}

// WithTokenTTL overrides the token lifetime.
func (s *Service) WithTokenTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
	return s
}

// WithClock overrides the time source used for token issue and expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new account. Self-registration may only create customer
// or vendor accounts; staff accounts are provisioned out of band.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleCustomer
	}
	if role != RoleCustomer && role != RoleVendor {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         role,
		FirstName:    optional(req.FirstName),
		LastName:     optional(req.LastName),
		Phone:        optional(req.Phone),
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT token and returns the identity it carries.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("auth: invalid token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Claims{}, fmt.Errorf("auth: invalid user_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !IsValidRole(role) {
		return Claims{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return Claims{UserID: userID, Role: role}, nil
}

// IssueToken signs a token for the user.
func (s *Service) IssueToken(userID string, role Role) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     now.Add(s.tokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// IsValidRole reports whether role is a known account role.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleSubAdmin, RoleVendor, RoleCustomer:
		return true
	default:
		return false
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

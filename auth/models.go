package auth

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub_admin"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
)

// IsStaff reports whether the role administers every listing.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSubAdmin
}

// User is the domain representation of a marketplace account.
// It mirrors the users table and carries no JSON annotations so it can be
// reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	FirstName    *string
	LastName     *string
	Phone        *string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

package users

// RoleType is the resource owner's application role.
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can manage every client and register trusted clients
	RoleUser  RoleType = "user"
)

// User is the projection of the application's user record that the
// authorization server needs. The user store itself lives elsewhere.
type User struct {
	ID            string   `json:"id" yaml:"id"`
	Email         string   `json:"email,omitempty" yaml:"email"`
	Username      string   `json:"username,omitempty" yaml:"username"`
	FullName      string   `json:"full_name,omitempty" yaml:"full_name"`
	Role          RoleType `json:"role,omitempty" yaml:"role"`
	IsActive      bool     `json:"is_active" yaml:"is_active"`
	EmailVerified bool     `json:"email_verified" yaml:"email_verified"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

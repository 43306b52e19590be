package models

// Role is the authorization role carried in the access token claim.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleVisitor  Role = "visitor"
)

// ValidRole reports whether r is a recognized role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleVisitor:
		return true
	}
	return false
}

// TokenPair is the credential pair issued by the upstream token endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Role    Role   `json:"role,omitempty"`
}

// LoginRequest is the token issuance payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// RegisterResponse carries the created user plus an initial token pair so the
// dashboard can authenticate immediately after registration.
type RegisterResponse struct {
	User    UserInfo `json:"user"`
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
}

// UserInfo describes the current account (/api/me/).
type UserInfo struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DateJoined string `json:"date_joined,omitempty"`
}

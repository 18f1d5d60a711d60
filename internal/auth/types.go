package auth

import "time"

// Identity is the decoded caller: the only two attributes the permission layer reads.
type Identity struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// Authenticated reports whether the identity refers to a real user.
func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

// User mirrors the users table. It is owned by user management; login only reads it.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity projects the user onto the attributes carried in tokens.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Role: u.Role}
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Registration is a self-service signup. The account starts pending.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewUser is an account created by an administrator. Active and Approved
// default to true.
type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Active   *bool  `json:"active"`
	Approved *bool  `json:"approved"`
}

// UserUpdate changes the non-nil fields. Password holds the plaintext on the
// way into UserService and the bcrypt hash on the way into the store.
type UserUpdate struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *Role   `json:"role"`
	Active   *bool   `json:"active"`
	Approved *bool   `json:"approved"`
}

// Privileged reports whether the update touches role, activity or approval.
func (u UserUpdate) Privileged() bool {
	return u.Role != nil || u.Active != nil || u.Approved != nil
}

// UserQuery narrows a user listing. Pending selects accounts awaiting approval.
type UserQuery struct {
	Role    Role
	Pending bool
	Limit   int
	Offset  int
}

// UserPage is one page of a user listing.
type UserPage struct {
	Items  []User `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

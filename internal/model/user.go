package model

import "time"

// Authorities gate access to the orders and users surfaces.
const (
	AuthorityReadOrders = "READ_ORDERS"
	AuthorityEditOrders = "EDIT_ORDERS"
	AuthorityReadUsers  = "READ_USERS"
	AuthorityEditUsers  = "EDIT_USERS"
)

// User is an authenticated principal.
type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	FullName     *string   `json:"full_name"`
	IsActive     bool      `json:"is_active"`
	Authorities  []string  `json:"authorities"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasAuthority reports whether the user carries the named authority.
func (u *User) HasAuthority(authority string) bool {
	for _, a := range u.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

package identity

import "time"

// User represents a mirrored identity-provider account
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the authenticated principal the identity provider yields
// for a request.
type Session struct {
	UserID int64
	Email  string
}

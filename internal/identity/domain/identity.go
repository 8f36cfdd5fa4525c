package domain

import "strings"

// Caller is the verified identity of the user behind a request, as asserted by the identity provider's
// session token. It is immutable for the lifetime of the request.
type Caller struct {
	UserID string
	// Email is set only when the provider marked it verified.
	Email string
}

// Authenticated reports whether c names a user.
func (c *Caller) Authenticated() bool {
	return c != nil && strings.TrimSpace(c.UserID) != ""
}

// Package identity is the boundary to the external identity provider.
//
// The provider owns credentials and session issuance; this package only
// verifies its signed session tokens into a Session{UserID, Email} and
// reads/updates the mirrored user records. Users are created upstream and
// are immutable here except for the display name.
package identity

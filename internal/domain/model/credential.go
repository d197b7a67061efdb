package model

import "time"

// Credential is a decrypted portal login pair for one chat user. It is only
// ever materialised for the duration of a single check cycle.
type Credential struct {
	UserID   string
	Username string
	Password string
	// UpdatedAt is when the user last (re-)registered.
	UpdatedAt time.Time
}

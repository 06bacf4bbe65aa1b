package domain

import "time"

// User is identified by a unique email. The core never deletes a User;
// account unlinking and message lifecycle are scoped below it.
type User struct {
	ID           string
	Email        string
	PasswordHash string // scrypt/argon family; empty for external-identity-only users
	ExternalID   string
	CreatedAt    time.Time
}

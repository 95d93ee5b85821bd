package models

import "time"

// User is a clinician account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           string
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

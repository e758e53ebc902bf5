package domain

import "time"

// User is a generic person record managed through the users API.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

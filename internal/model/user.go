package model

// Operator is the account allowed to drive players through the admin API.
type Operator struct {
	Email          string
	HashedPassword string
}

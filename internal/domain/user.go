package domain

import "time"

// Role enumerates caller categories.
type Role string

const (
	// RoleResident is an end user requesting services and paying invoices.
	RoleResident Role = "RESIDENT"
	// RoleApplication is a trusted external system (helpdesk/ERP webhook caller).
	RoleApplication Role = "APPLICATION"
	// RoleBackoffice is internal staff with read access to all payments.
	RoleBackoffice Role = "BACKOFFICE"
)

// User is an authenticated account: a resident, a peer application or staff.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	SapCustomer  int
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

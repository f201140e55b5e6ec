// Package users stores user accounts and the user-type management hierarchy.
package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates that the requested user does not exist.
var ErrNotFound = errors.New("users: not found")

// Type ranks users for management decisions: SUPERADMIN manages everyone,
// ADMIN manages USER and CUSTOMER, USER manages CUSTOMER, CUSTOMER nobody.
type Type string

const (
	TypeSuperadmin Type = "SUPERADMIN"
	TypeAdmin      Type = "ADMIN"
	TypeUser       Type = "USER"
	TypeCustomer   Type = "CUSTOMER"
)

var ranks = map[Type]int{
	TypeSuperadmin: 3,
	TypeAdmin:      2,
	TypeUser:       1,
	TypeCustomer:   0,
}

// Valid reports whether t is a known user type.
func (t Type) Valid() bool {
	_, ok := ranks[t]
	return ok
}

// Rank returns the numeric position of t in the management hierarchy.
func (t Type) Rank() int {
	return ranks[t]
}

// CanManage reports whether a holder of type t may manage the target type.
// SUPERADMIN manages every type including its own; all others manage only
// strictly junior types.
func (t Type) CanManage(target Type) bool {
	if t == TypeSuperadmin {
		return true
	}
	return t.Rank() > target.Rank()
}

// IsAdmin reports whether t clears the bar for elevated-risk grants.
func (t Type) IsAdmin() bool {
	return t == TypeSuperadmin || t == TypeAdmin
}

// User represents a user account as the engine sees it.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Type      Type
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

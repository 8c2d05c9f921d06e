// Package user holds the owner entity todos are attached to.
//
// Users are only consulted for referential integrity when a todo is created.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrValidation = errors.New("invalid user")

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser is a validated creation payload.
type NewUser struct {
	Email string
	Name  string
}

// ParseNewUser trims and checks the raw fields.
func ParseNewUser(email, name string) (NewUser, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return NewUser{}, fmt.Errorf("%w: email is required and cannot be empty", ErrValidation)
	}
	if name == "" {
		return NewUser{}, fmt.Errorf("%w: name is required and cannot be empty", ErrValidation)
	}
	return NewUser{Email: email, Name: name}, nil
}

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	FindUser(ctx context.Context, id string) (User, bool, error)
}

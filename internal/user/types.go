package user

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when no user has the requested key.
var ErrUserNotFound = errors.New("user: not found")

// ErrKeyExists is returned when inserting a key that is already stored.
var ErrKeyExists = errors.New("user: key already exists")

// User is one registered access key.
type User struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Package user stores the access keys handed out by POST /user.
//
// A key is a random UUIDv4 paired with a free-text display name. Names may
// repeat; every registration produces a fresh key. Keys are not checked by
// the toggle route unless security.require_registered_key is set.
package user

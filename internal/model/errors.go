package model

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNameTaken         = errors.New("name already taken")
	ErrAlreadyAnswered   = errors.New("already answered")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrForbidden         = errors.New("not the session host")

	// ErrNoChange is returned by an update function when the write would be
	// redundant. The store aborts the write and the caller sees no error.
	ErrNoChange = errors.New("no change")
)

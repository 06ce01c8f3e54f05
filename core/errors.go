package core

import "errors"

var (
	// ErrInvalidMessage is recorded for empty or degenerate user input.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStoreWrite wraps failures persisting a record to the memory backend.
	ErrStoreWrite = errors.New("memory store write failed")

	// ErrNotFound is returned when a record or conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyResponse is returned when a model produces no content.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrMissingUser is returned when an operation needs a user scope and none was given.
	ErrMissingUser = errors.New("user id is required")
)

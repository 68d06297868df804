package repository

import "errors"

// Sentinel kinds for collection errors.
var (
	ErrAlreadyExists    = errors.New("record already exists")
	ErrInvalidPartition = errors.New("invalid partition path")
	ErrInvalidRecord    = errors.New("invalid record")
	ErrUnknownDriver    = errors.New("unknown store driver")
	ErrClosed           = errors.New("collection closed")
)

package service

import "errors"

// Sentinel kinds for backend service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrCreateFailed     = errors.New("create record failed")
	ErrInvalidPartition = errors.New("invalid partition path")
)

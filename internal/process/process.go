// Package process terminates renderer process trees that outlive their
// controlling connection.
package process

import "errors"

// ErrInvalidPID is returned for non-positive process IDs. PID 0 would target
// the caller's own process group.
var ErrInvalidPID = errors.New("invalid process id")

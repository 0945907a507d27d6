// Package fserrors defines the sentinel error kinds treefuse's CLI layer
// wraps into the errors it returns; cmd pairs each wrapped error with its
// process exit code where the error is built. Failures inside
// filesystem callbacks never reach this package: internal/fs answers the
// kernel with raw syscall errno values directly.
package fserrors

import "errors"

var (
	// ErrInvalidDocument marks a malformed or semantically invalid tree
	// document. Fatal; aborts before mounting.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidConfig marks a CLI value rejected by a parser or a range
	// check. Fatal; aborts before mounting.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrMount marks a failure from the host FUSE bridge while attaching.
	ErrMount = errors.New("mount failed")
)

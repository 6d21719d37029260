package database

import "errors"

var (
	// ErrNoCredentials is returned by Finalize when neither a URL nor a user
	// is configured, since the DSN would otherwise fall back to the OS user.
	ErrNoCredentials = errors.New("database url or user required")

	// ErrNotReady wraps ping failures so readiness checks can match them
	// without depending on driver error types.
	ErrNotReady = errors.New("database not ready")
)

package shared

import "fmt"

var (
	// Configuration errors are fatal at startup, before any network activity.
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Provider errors
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrRateLimited         = fmt.Errorf("rate limited")
	ErrUserNotFound        = fmt.Errorf("user not found")
	ErrPrivateProfile      = fmt.Errorf("user profile is private")

	// Sync and import errors
	ErrNoHistory     = fmt.Errorf("no existing history")
	ErrSyncAborted   = fmt.Errorf("sync aborted after consecutive failures")
	ErrSourceMissing = fmt.Errorf("source directory not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

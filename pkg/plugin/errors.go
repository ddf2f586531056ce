package plugin

import "errors"

// Failure categories for lifecycle and package operations. Callers
// match with errors.Is; every sentinel is wrapped with the plugin or
// archive it concerns.
var (
	// ErrMalformedPackage marks an archive whose manifest is missing,
	// unreadable, or invalid.
	ErrMalformedPackage = errors.New("malformed plugin package")

	// ErrExtraction marks a failure to unpack an archive into its
	// workspace.
	ErrExtraction = errors.New("plugin extraction failed")

	// ErrActivation marks a plugin whose code failed to interpret or
	// whose handlers could not be resolved.
	ErrActivation = errors.New("plugin activation failed")

	// ErrNotLoaded marks an operation that requires an active handler
	// table.
	ErrNotLoaded = errors.New("plugin not loaded")

	// ErrUnknownPlugin marks an id the registry has no record of.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

package editor

import "errors"

var (
	// ErrPatternRejected is returned when the backend does not acknowledge a
	// custom pattern, typically because it failed to parse.
	ErrPatternRejected = errors.New("custom pattern rejected by backend")

	// ErrNoRegistrar is returned when the controller has no backend to
	// register custom patterns with.
	ErrNoRegistrar = errors.New("no custom pattern registrar configured")
)

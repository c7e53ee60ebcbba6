package swap

import "errors"

var (
	// ErrUnsupportedVenue indicates a step names a venue no adapter is
	// registered for. The whole call aborts; there is nothing to recover.
	ErrUnsupportedVenue = errors.New("swap: unsupported venue")
	// ErrLengthMismatch indicates a malformed request: empty route, parallel
	// arrays of different lengths, or a discontinuous token path.
	ErrLengthMismatch = errors.New("swap: malformed route")
)

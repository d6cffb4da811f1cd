package recognizer

import "errors"

var (
	// ErrLaunch means the recognizer executable could not be started. It is
	// the only failure that aborts a whole page.
	ErrLaunch = errors.New("recognizer could not be launched")

	// ErrTimeout means the recognizer exceeded its bounded wait without
	// producing a result. Callers treat it as an empty result.
	ErrTimeout = errors.New("recognition timed out")

	// ErrIO means the raster could not be written or the result was unreadable
	// or malformed. It is fatal only for the affected sub-image.
	ErrIO = errors.New("recognition result unreadable")
)

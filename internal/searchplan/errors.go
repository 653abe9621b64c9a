package searchplan

import "errors"

// ErrNotLoaded is returned when an operation needs a plan and none was loaded.
var ErrNotLoaded = errors.New("search plan not loaded")

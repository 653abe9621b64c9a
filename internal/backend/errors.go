package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned, without a request, when the session key is
	// empty.
	ErrNoSession = errors.New("no backend session")
)

// RemoteError is a non-2xx answer of the mining backend.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

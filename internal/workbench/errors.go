package workbench

import (
	"errors"

	"github.com/fidde/oxminer/internal/backend"
)

var (
	// ErrNoSession is returned when an operation needs a backend session and
	// no log has been uploaded yet.
	ErrNoSession = backend.ErrNoSession

	// ErrSessionNotFound is returned for an unknown workbench id.
	ErrSessionNotFound = errors.New("workbench not found")

	// ErrTooManySessions is returned when MaxSessions workbenches are live.
	ErrTooManySessions = errors.New("too many workbenches")

	// ErrNoPanel is returned for a graph panel index that does not exist.
	ErrNoPanel = errors.New("no such graph panel")

	// ErrNotRuleMode is returned when rules are requested but the content is
	// not a rule result.
	ErrNotRuleMode = errors.New("graph content is not in rule mode")
)

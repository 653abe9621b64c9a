package reshape

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/fidde/oxminer/pkg/models"
)

var (
	// ErrUnknownMode is returned for a mode other than model or rules.
	ErrUnknownMode = errors.New("unknown reshape mode")
)

// Fetcher retrieves the raw filtered-model payload from the backend.
type Fetcher interface {
	GetFilteredModel(ctx context.Context, sessionKey string, req models.FilterRequest) ([]byte, error)
}

// Request is everything a recomputation depends on. Epoch is the value of
// Recomputer.Epoch when the request was built; a request from an older
// epoch is rejected without a backend call.
type Request struct {
	SessionKey string
	Mode       Mode
	Filter     models.FilterRequest
	Epoch      uint64
}

func (r Request) equal(other Request) bool {
	return r.SessionKey == other.SessionKey &&
		r.Mode == other.Mode &&
		r.Epoch == other.Epoch &&
		r.Filter.EventType == other.Filter.EventType &&
		slices.Equal(r.Filter.ObjectTypes, other.Filter.ObjectTypes) &&
		slices.Equal(r.Filter.SplitPatternIDs, other.Filter.SplitPatternIDs)
}

func (r Request) clone() Request {
	out := r
	out.Filter.ObjectTypes = slices.Clone(r.Filter.ObjectTypes)
	out.Filter.SplitPatternIDs = slices.Clone(r.Filter.SplitPatternIDs)
	return out
}

// Status reports what a Recompute call did.
type Status int

const (
	// StatusSkipped: session key or event type missing, nothing sent.
	StatusSkipped Status = iota
	// StatusUnchanged: same request as the last one, nothing sent.
	StatusUnchanged
	// StatusApplied: the new content replaced the previous one.
	StatusApplied
	// StatusSuperseded: a newer request or an Invalidate came first; the
	// request was not sent or its response was discarded.
	StatusSuperseded
	// StatusFailed: the backend call or decoding failed; the previous
	// content is kept.
	StatusFailed
)

var statusNames = [...]string{"skipped", "unchanged", "applied", "superseded", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Recomputer owns the graph content of one workbench. Every input change
// calls Recompute; the content is replaced wholesale, and only by the
// response to the most recently issued request.
type Recomputer struct {
	fetcher  Fetcher
	logger   *slog.Logger
	observer func(Status)

	mu         sync.Mutex
	generation uint64
	epoch      uint64
	last       *Request
	content    Result
	lastErr    error
}

// NewRecomputer creates a recomputer. observer, if non-nil, is called with
// the status of every Recompute call.
func NewRecomputer(fetcher Fetcher, logger *slog.Logger, observer func(Status)) *Recomputer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recomputer{
		fetcher:  fetcher,
		logger:   logger,
		observer: observer,
	}
}

// Recompute fetches and reshapes the content for req. The backend call runs
// without holding the lock, so a slower older call may finish after a newer
// one; its result is then dropped.
func (r *Recomputer) Recompute(ctx context.Context, req Request) (Status, error) {
	status, err := r.recompute(ctx, req)
	if r.observer != nil {
		r.observer(status)
	}
	return status, err
}

func (r *Recomputer) recompute(ctx context.Context, req Request) (Status, error) {
	r.mu.Lock()
	if req.SessionKey == "" || req.Filter.EventType == "" {
		r.mu.Unlock()
		return StatusSkipped, nil
	}
	if req.Epoch != r.epoch {
		r.mu.Unlock()
		r.logger.Debug("discarding request built before invalidation",
			"epoch", req.Epoch,
			"latest", r.epoch,
			"event_type", req.Filter.EventType)
		return StatusSuperseded, nil
	}
	if r.last != nil && r.last.equal(req) {
		r.mu.Unlock()
		return StatusUnchanged, nil
	}
	r.generation++
	gen := r.generation
	submitted := req.clone()
	r.last = &submitted
	r.mu.Unlock()

	raw, err := r.fetcher.GetFilteredModel(ctx, submitted.SessionKey, submitted.Filter)
	var result Result
	if err == nil {
		result, err = Decode(submitted.Mode, raw, submitted.Filter.ObjectTypes)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		r.logger.Debug("discarding stale model response",
			"generation", gen,
			"latest", r.generation,
			"event_type", submitted.Filter.EventType)
		return StatusSuperseded, nil
	}
	if err != nil {
		r.lastErr = err
		// forget the request so the same filter can be retried
		r.last = nil
		r.logger.Warn("model recomputation failed",
			"event_type", submitted.Filter.EventType,
			"error", err)
		return StatusFailed, err
	}

	r.content = result
	r.lastErr = nil
	return StatusApplied, nil
}

// Invalidate drops the content and forgets the last request. Responses to
// requests issued before the call are discarded when they arrive, and
// requests built before it are never sent.
func (r *Recomputer) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.epoch++
	r.last = nil
	r.content = nil
	r.lastErr = nil
}

// Content returns the current content, or nil.
func (r *Recomputer) Content() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content
}

// LastError returns the error of the latest failed recomputation, cleared
// by the next successful one.
func (r *Recomputer) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Epoch returns the number of invalidations so far. Callers stamp it on
// the Request they build under the same lock that guards Invalidate.
func (r *Recomputer) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Generation returns the number of requests issued so far.
func (r *Recomputer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

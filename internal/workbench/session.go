// Package workbench holds the state of one user's mining workbench and
// exposes it as a set of operations: upload, event-type confirmation,
// pattern curation, mining runs and the model graph.
//
// A Session serializes its callers with a mutex. The graph recomputation is
// the exception: its backend call runs outside the lock and is ordered by
// the recomputer's generation counter instead.
package workbench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fidde/oxminer/internal/editor"
	"github.com/fidde/oxminer/internal/graph"
	"github.com/fidde/oxminer/internal/metrics"
	"github.com/fidde/oxminer/internal/reshape"
	"github.com/fidde/oxminer/internal/searchplan"
	"github.com/fidde/oxminer/pkg/models"
)

// Backend is the part of the mining backend a session drives.
type Backend interface {
	UploadLog(ctx context.Context, filename string, file io.Reader) (*models.UploadResponse, error)
	ConfirmEventTypes(ctx context.Context, sessionKey string, eventTypes []models.EventType) (*models.SearchPlan, error)
	LoadTables(ctx context.Context, sessionKey string) (json.RawMessage, error)
	LoadSearchPlans(ctx context.Context, sessionKey string, maxAttrLabels int) (*models.SearchPlan, error)
	RegisterCustomPattern(ctx context.Context, sessionKey string, eventType models.EventType, id models.PatternID) (bool, error)
	StartModelSearch(ctx context.Context, sessionKey string, opts models.MiningOptions, plan *models.SearchPlan) (*models.MiningResult, error)
	StartRuleSearch(ctx context.Context, sessionKey string, opts models.MiningOptions, plan *models.SearchPlan) (*models.MiningResult, error)
	GetFilteredModel(ctx context.Context, sessionKey string, req models.FilterRequest) ([]byte, error)
	DownloadRules(ctx context.Context, sessionKey string) ([]byte, string, error)
}

// RunRecorder receives every completed mining run.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
}

// ModelView is the filter of the graph: one event type, the object types
// shown in the right column and, in rule mode, the split patterns.
type ModelView struct {
	EventType       models.EventType    `json:"event_type"`
	ObjectTypes     []models.ObjectType `json:"object_types"`
	SplitPatternIDs []models.PatternID  `json:"split_pattern_ids,omitempty"`
}

func (v ModelView) clone() ModelView {
	v.ObjectTypes = slices.Clone(v.ObjectTypes)
	v.SplitPatternIDs = slices.Clone(v.SplitPatternIDs)
	return v
}

// EditorView is what the pattern editor shows.
type EditorView struct {
	Cursor                      searchplan.Cursor   `json:"cursor"`
	Options                     []models.PatternID  `json:"options"`
	Selected                    []models.PatternID  `json:"selected"`
	ObjectTypeOptions           []models.ObjectType `json:"object_type_options"`
	ObjectTypeSelectionDisabled bool                `json:"object_type_selection_disabled"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID                  string                 `json:"id"`
	SessionKey          string                 `json:"session_key,omitempty"`
	Upload              *models.UploadResponse `json:"upload,omitempty"`
	ConfirmedEventTypes []models.EventType     `json:"confirmed_event_types"`
	PlanEventTypes      []models.EventType     `json:"plan_event_types"`
	Editor              EditorView             `json:"editor"`
	Options             models.MiningOptions   `json:"options"`
	Mode                reshape.Mode           `json:"mode"`
	Result              *models.MiningResult   `json:"result,omitempty"`
	LastRunID           string                 `json:"last_run_id,omitempty"`
	View                ModelView              `json:"view"`
	Generation          uint64                 `json:"generation"`
	LastError           string                 `json:"last_error,omitempty"`
	LastErrorOp         string                 `json:"last_error_op,omitempty"`
	Created             time.Time              `json:"created"`
	LastUsed            time.Time              `json:"last_used"`
}

// Config configures new sessions.
type Config struct {
	MaxAttrLabels  int                  `yaml:"max_attr_labels"`
	DefaultOptions models.MiningOptions `yaml:"default_options"`
}

// Session is one workbench.
type Session struct {
	id      string
	backend Backend
	runs    RunRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
	created time.Time

	// unix nanoseconds, read by the manager without taking mu
	lastUsed atomic.Int64

	recomputer *reshape.Recomputer

	mu         sync.Mutex
	sessionKey string
	upload     *models.UploadResponse
	confirmed  []models.EventType
	plan       *searchplan.Model
	editor     *editor.Controller
	options    models.MiningOptions
	mode       reshape.Mode
	result     *models.MiningResult
	lastRunID  string
	view       ModelView
	lastErr    error
	lastErrOp  string
}

func newSession(id string, cfg Config, backend Backend, runs RunRecorder, logger *slog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("workbench", id)

	s := &Session{
		id:      id,
		backend: backend,
		runs:    runs,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		created: time.Now().UTC(),
		options: cfg.DefaultOptions,
	}
	s.recomputer = reshape.NewRecomputer(backend, logger, func(status reshape.Status) {
		m.ObserveRecompute(status.String())
	})
	s.resetLocked()
	s.touch()
	return s
}

// ID returns the workbench id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed reports when the session was last accessed.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load()).UTC()
}

// sessionRegistrar binds the editor's registrar to the session key. It is
// only called from editor operations, with s.mu held.
type sessionRegistrar struct{ s *Session }

func (r sessionRegistrar) RegisterCustomPattern(ctx context.Context, eventType models.EventType, id models.PatternID) (bool, error) {
	return r.s.backend.RegisterCustomPattern(ctx, r.s.sessionKey, eventType, id)
}

// resetLocked drops everything derived from the uploaded log.
func (s *Session) resetLocked() {
	s.plan = searchplan.New()
	s.editor = editor.New(s.plan, sessionRegistrar{s}, s.relatedLocked, s.logger)
	s.confirmed = nil
	s.mode = reshape.ModeModel
	s.result = nil
	s.lastRunID = ""
	s.view = ModelView{}
	s.recomputer.Invalidate()
}

func (s *Session) relatedLocked(eventType models.EventType) []models.ObjectType {
	return s.upload.RelatedObjectTypes(eventType)
}

// remote records the outcome of a backend call. Missing session keys are
// precondition no-ops and leave the error state alone.
func (s *Session) remote(op string, err error) error {
	if err == nil {
		s.lastErr = nil
		s.lastErrOp = ""
		return nil
	}
	if errors.Is(err, ErrNoSession) {
		return err
	}
	s.lastErr = err
	s.lastErrOp = op
	s.logger.Warn("backend operation failed", "op", op, "error", err)
	return err
}

// Upload sends a log to the backend and starts over with its session.
func (s *Session) Upload(ctx context.Context, filename string, file io.Reader) (*models.UploadResponse, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.backend.UploadLog(ctx, filename, file)
	if err := s.remote("upload", err); err != nil {
		return nil, err
	}

	s.sessionKey = resp.SessionKey
	s.upload = resp
	s.resetLocked()
	s.logger.Info("log uploaded", "session_key", resp.SessionKey, "event_types", len(resp.EventTypes))
	return resp, nil
}

// ConfirmEventTypes selects the event types to analyze and loads their
// search plan.
func (s *Session) ConfirmEventTypes(ctx context.Context, eventTypes []models.EventType) (*models.SearchPlan, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return nil, ErrNoSession
	}
	plan, err := s.backend.ConfirmEventTypes(ctx, s.sessionKey, eventTypes)
	if err := s.remote("confirm-event-types", err); err != nil {
		return nil, err
	}

	s.confirmed = slices.Clone(eventTypes)
	s.loadPlanLocked(plan)
	return s.plan.Baseline(), nil
}

// LoadTables asks the backend to build the tables of the confirmed event
// types.
func (s *Session) LoadTables(ctx context.Context) (json.RawMessage, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return nil, ErrNoSession
	}
	resp, err := s.backend.LoadTables(ctx, s.sessionKey)
	if err := s.remote("load-tables", err); err != nil {
		return nil, err
	}
	return resp, nil
}

// LoadSearchPlans reloads the default search plans, discarding curation.
func (s *Session) LoadSearchPlans(ctx context.Context) (*models.SearchPlan, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return nil, ErrNoSession
	}
	plan, err := s.backend.LoadSearchPlans(ctx, s.sessionKey, s.cfg.MaxAttrLabels)
	if err := s.remote("load-search-plans", err); err != nil {
		return nil, err
	}

	s.loadPlanLocked(plan)
	return s.plan.Baseline(), nil
}

func (s *Session) loadPlanLocked(plan *models.SearchPlan) {
	s.plan.Load(plan)
	s.editor.Refresh()
	s.result = nil
	s.view = ModelView{}
	s.recomputer.Invalidate()
}

// SetCursor moves the editor to another list.
func (s *Session) SetCursor(cursor searchplan.Cursor) EditorView {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.editor.SetCursor(cursor)
	return s.editorViewLocked()
}

// Editor returns the editor state.
func (s *Session) Editor() EditorView {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editorViewLocked()
}

func (s *Session) editorViewLocked() EditorView {
	return EditorView{
		Cursor:                      s.editor.Cursor(),
		Options:                     s.editor.Options(),
		Selected:                    s.editor.Selected(),
		ObjectTypeOptions:           s.editor.ObjectTypeOptions(),
		ObjectTypeSelectionDisabled: s.editor.ObjectTypeSelectionDisabled(),
	}
}

// UpdateSelection replaces the kept patterns of the current list.
func (s *Session) UpdateSelection(list []models.PatternID) (searchplan.Outcome, EditorView) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.editor.UpdateSelection(list)
	return outcome, s.editorViewLocked()
}

// ConfirmCustomPattern registers a user-written pattern for the event type
// under the cursor.
func (s *Session) ConfirmCustomPattern(ctx context.Context, id models.PatternID) (searchplan.Outcome, EditorView, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return searchplan.Skipped, s.editorViewLocked(), nil
	}
	outcome, err := s.editor.ConfirmCustomPattern(ctx, id)
	if err != nil && !errors.Is(err, editor.ErrPatternRejected) {
		s.remote("register-custom-pattern", err)
	}
	return outcome, s.editorViewLocked(), err
}

// ResetSelection discards the curation of every list.
func (s *Session) ResetSelection() (searchplan.Outcome, EditorView) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.plan.Reset()
	s.editor.Refresh()
	return outcome, s.editorViewLocked()
}

// Options returns the mining options.
func (s *Session) Options() models.MiningOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// SetMiningOptions replaces the mining options.
func (s *Session) SetMiningOptions(opts models.MiningOptions) error {
	s.touch()
	if err := opts.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = opts
	return nil
}

// StartModelSearch mines a model over the curated plan.
func (s *Session) StartModelSearch(ctx context.Context) (*models.RunRecord, error) {
	return s.search(ctx, reshape.ModeModel)
}

// StartRuleSearch mines rules over the curated plan.
func (s *Session) StartRuleSearch(ctx context.Context) (*models.RunRecord, error) {
	return s.search(ctx, reshape.ModeRules)
}

func (s *Session) search(ctx context.Context, mode reshape.Mode) (*models.RunRecord, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return nil, ErrNoSession
	}
	if !s.plan.Loaded() {
		return nil, searchplan.ErrNotLoaded
	}

	plan := s.plan.Filtered()
	var (
		result *models.MiningResult
		err    error
		op     string
	)
	if mode == reshape.ModeRules {
		op = "search-rules"
		result, err = s.backend.StartRuleSearch(ctx, s.sessionKey, s.options, plan)
	} else {
		op = "search"
		result, err = s.backend.StartModelSearch(ctx, s.sessionKey, s.options, plan)
	}
	if err := s.remote(op, err); err != nil {
		return nil, err
	}

	s.mode = mode
	s.result = result
	s.view = ModelView{}
	s.recomputer.Invalidate()

	run := s.runRecordLocked(mode, plan, result)
	s.lastRunID = run.ID
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, run); err != nil {
			// the run itself succeeded; history is best effort
			s.logger.Error("failed to record run", "run_id", run.ID, "error", err)
		} else {
			s.metrics.IncRuns()
		}
	}
	s.logger.Info("mining run completed", "run_id", run.ID, "mode", mode.String())
	return run, nil
}

func (s *Session) runRecordLocked(mode reshape.Mode, plan *models.SearchPlan, result *models.MiningResult) *models.RunRecord {
	runMode := models.RunModeModel
	if mode == reshape.ModeRules {
		runMode = models.RunModeRules
	}

	eventTypes := plan.EventTypes()
	counts := make(map[models.EventType]int, len(eventTypes))
	for _, et := range eventTypes {
		counts[et] = plan.PatternCount(et)
	}

	return &models.RunRecord{
		ID:            models.NewRunID(),
		SessionKey:    s.sessionKey,
		Mode:          runMode,
		Options:       s.options,
		EventTypes:    eventTypes,
		Evaluations:   result.ModelEvaluations,
		PatternCounts: counts,
		Created:       time.Now().UTC(),
	}
}

// SetModelView changes the graph filter and recomputes the graph content.
// The backend call runs without holding the session lock.
func (s *Session) SetModelView(ctx context.Context, view ModelView) (reshape.Status, error) {
	s.touch()
	s.mu.Lock()
	s.view = view.clone()
	req := reshape.Request{
		SessionKey: s.sessionKey,
		Mode:       s.mode,
		Filter: models.FilterRequest{
			EventType:       view.EventType,
			ObjectTypes:     slices.Clone(view.ObjectTypes),
			SplitPatternIDs: slices.Clone(view.SplitPatternIDs),
		},
		Epoch: s.recomputer.Epoch(),
	}
	s.mu.Unlock()

	status, err := s.recomputer.Recompute(ctx, req)
	if status == reshape.StatusFailed {
		s.mu.Lock()
		s.remote("get-model", err)
		s.mu.Unlock()
	} else if status == reshape.StatusApplied {
		s.mu.Lock()
		s.remote("get-model", nil)
		s.mu.Unlock()
	}
	return status, err
}

// Graph returns the graph of the current content.
func (s *Session) Graph() graph.Graph {
	s.touch()
	return graph.Bind(s.recomputer.Content())
}

// Edges returns the drawable edges of one graph panel for the rendered
// geometry.
func (s *Session) Edges(panel int, layout graph.Layout) ([]graph.Edge, error) {
	s.touch()
	g := graph.Bind(s.recomputer.Content())
	if panel < 0 || panel >= len(g.Panels) {
		return nil, fmt.Errorf("%w: %d", ErrNoPanel, panel)
	}
	return graph.DrawableEdges(g.Panels[panel], layout), nil
}

// Rules returns the rule content, or ErrNotRuleMode.
func (s *Session) Rules() (*reshape.RuleResult, error) {
	s.touch()
	rules, ok := s.recomputer.Content().(*reshape.RuleResult)
	if !ok {
		return nil, ErrNotRuleMode
	}
	return rules, nil
}

// DownloadRules returns the rules file of the last rule search.
func (s *Session) DownloadRules(ctx context.Context) ([]byte, string, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" {
		return nil, "", ErrNoSession
	}
	data, contentType, err := s.backend.DownloadRules(ctx, s.sessionKey)
	if err := s.remote("download-rules", err); err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                  s.id,
		SessionKey:          s.sessionKey,
		Upload:              s.upload,
		ConfirmedEventTypes: slices.Clone(s.confirmed),
		PlanEventTypes:      s.plan.EventTypes(),
		Editor:              s.editorViewLocked(),
		Options:             s.options,
		Mode:                s.mode,
		Result:              s.result,
		LastRunID:           s.lastRunID,
		View:                s.view.clone(),
		Generation:          s.recomputer.Generation(),
		LastErrorOp:         s.lastErrOp,
		Created:             s.created,
		LastUsed:            s.LastUsed(),
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if snap.ConfirmedEventTypes == nil {
		snap.ConfirmedEventTypes = []models.EventType{}
	}
	if snap.PlanEventTypes == nil {
		snap.PlanEventTypes = []models.EventType{}
	}
	return snap
}

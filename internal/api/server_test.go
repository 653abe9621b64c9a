package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/oxminer/internal/backend"
	"github.com/fidde/oxminer/internal/storage/memory"
	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/pkg/models"
)

const (
	testPlan = `{"patterns": {"place order": {
		"basic_patterns": ["p1", "p2"],
		"interaction_patterns": {"orders": ["p3"]},
		"custom_patterns": []}}}`

	testUpload = `{"session_key": "s1", "event_types": ["place order"], "object_types": ["orders"],
		"event_type_object_types": {"place order": ["orders"]}}`

	testModel = `{"valid_patterns": {"support": 5, "pretty_pattern_ids": ["a"], "argument_ids": {"orders": ["o"]}},
		"partitions": {"1": {"support": 2, "pretty_pattern_ids": ["b"]}, "0": {"support": 3, "pretty_pattern_ids": ["c"]}}}`
)

// miningBackend imitates the pattern-mining service.
type miningBackend struct {
	failModel atomic.Bool
	searches  atomic.Int32
}

func (m *miningBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/upload-ocel":
		w.Write([]byte(testUpload))
	case "/set-event-types", "/search-plans":
		w.Write([]byte(testPlan))
	case "/load-tables":
		w.Write([]byte(`{"resp": true}`))
	case "/register-custom-pattern":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(models.Ack{Resp: body["pattern_id"] != "bad"})
	case "/search", "/search-rules":
		m.searches.Add(1)
		w.Write([]byte(`{"model_evaluations": {"place order": {"precision": 1}}, "all_patterns": {}}`))
	case "/get-model":
		if m.failModel.Load() {
			http.Error(w, "mining crashed", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(testModel))
	case "/download-rules":
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("rule\n"))
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	mining  *miningBackend
	runs    *memory.Store
}

func newTestEnv(t *testing.T, mcfg workbench.ManagerConfig) *testEnv {
	t.Helper()
	mining := &miningBackend{}
	srv := httptest.NewServer(mining)
	t.Cleanup(srv.Close)

	client, err := backend.New(backend.Config{BaseURL: srv.URL, Timeout: 5 * time.Second, CacheSize: 16})
	require.NoError(t, err)

	runs := memory.New()
	mcfg.Session.DefaultOptions = models.DefaultMiningOptions()
	manager := workbench.NewManager(mcfg, client, runs, nil, nil)

	s := NewServer(Config{MaxUploadBytes: 1 << 20}, Deps{
		Workbenches: manager,
		Runs:        runs,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	})
	return &testEnv{t: t, handler: s.Handler(), mining: mining, runs: runs}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(id string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "log.jsonocel")
	require.NoError(e.t, err)
	part.Write(content)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workbenches/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) create() string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/v1/workbenches", nil)
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	var snap workbench.Snapshot
	require.NoError(e.t, json.Unmarshal(rr.Body.Bytes(), &snap))
	return snap.ID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})
	env.create()

	rr := env.do(http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	health := decode[HealthResponse](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Workbenches)

	rr = env.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWorkbenchLifecycle(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{MaxSessions: 1})
	id := env.create()

	rr := env.do(http.MethodPost, "/api/v1/workbenches", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(http.MethodGet, "/api/v1/workbenches", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, rr)["total"])

	rr = env.do(http.MethodDelete, "/api/v1/workbenches/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(http.MethodGet, "/api/v1/workbenches/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSkippedWithoutUpload(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})
	id := env.create()
	base := "/api/v1/workbenches/" + id

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, base + "/event-types"},
		{http.MethodPost, base + "/tables"},
		{http.MethodPost, base + "/search"},
		{http.MethodGet, base + "/rules/download"},
	} {
		rr := env.do(tc.method, tc.path, map[string]any{})
		assert.Equal(t, http.StatusOK, rr.Code, tc.path)
		assert.JSONEq(t, `{"outcome":"skipped"}`, rr.Body.String(), tc.path)
	}

	rr := env.do(http.MethodPost, base+"/custom-patterns", map[string]string{"pattern_id": "mine"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "skipped", decode[map[string]any](t, rr)["outcome"])

	rr = env.do(http.MethodPut, base+"/model-view", workbench.ModelView{EventType: "place order"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "skipped", decode[map[string]any](t, rr)["status"])
	assert.Zero(t, env.mining.searches.Load())
}

func TestMiningFlow(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})
	id := env.create()
	base := "/api/v1/workbenches/" + id

	rr := env.upload(id, []byte("{}"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "s1", decode[models.UploadResponse](t, rr).SessionKey)

	rr = env.do(http.MethodPost, base+"/event-types", map[string]any{"event_types": []string{"place order"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	plan := decode[PlanResponse](t, rr)
	assert.Equal(t, []models.PatternID{"p1", "p2"}, plan.Plan.Bundle("place order").Basic)

	rr = env.do(http.MethodPut, base+"/cursor", map[string]string{"event_type": "place order", "pattern_kind": "basic_patterns"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []models.PatternID{"p1", "p2"}, decode[workbench.EditorView](t, rr).Options)

	rr = env.do(http.MethodPut, base+"/patterns", map[string]any{"selected": []string{"p2"}})
	require.Equal(t, http.StatusOK, rr.Code)
	edit := decode[map[string]any](t, rr)
	assert.Equal(t, "applied", edit["outcome"])

	rr = env.do(http.MethodPost, base+"/custom-patterns", map[string]string{"pattern_id": "bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = env.do(http.MethodPost, base+"/custom-patterns", map[string]string{"pattern_id": "mine"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPut, base+"/options", map[string]any{"min_support": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(http.MethodPut, base+"/options", map[string]any{"min_support": 4})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4, decode[models.MiningOptions](t, rr).MinSupport)
	assert.Equal(t, 1, decode[models.MiningOptions](t, rr).MaxRuleAnteLength, "unset fields keep their value")

	rr = env.do(http.MethodPost, base+"/search", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	run := decode[models.RunRecord](t, rr)
	assert.Equal(t, models.RunModeModel, run.Mode)

	rr = env.do(http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4, decode[models.RunRecord](t, rr).Options.MinSupport)

	rr = env.do(http.MethodGet, "/api/v1/runs?session-key=s1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, rr)["total"])

	rr = env.do(http.MethodPut, base+"/model-view", workbench.ModelView{
		EventType:   "place order",
		ObjectTypes: []models.ObjectType{"orders"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "applied", decode[map[string]any](t, rr)["status"])

	rr = env.do(http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var g struct {
		Mode   string `json:"mode"`
		Panels []struct {
			PatternNodes []struct {
				Labels []string `json:"labels"`
			} `json:"pattern_nodes"`
			Links []map[string]int `json:"links"`
		} `json:"panels"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, "model", g.Mode)
	require.Len(t, g.Panels, 1)
	require.Len(t, g.Panels[0].PatternNodes, 3)
	assert.Equal(t, []string{"b"}, g.Panels[0].PatternNodes[1].Labels, "partitions keep backend order")
	assert.Len(t, g.Panels[0].Links, 1)

	rr = env.do(http.MethodPost, base+"/graph/edges", map[string]any{
		"panel": 0,
		"left":  []map[string]float64{{"left": 0, "top": 0, "width": 10, "height": 10}},
		"right": []map[string]float64{{"left": 100, "top": 0, "width": 10, "height": 10}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1.0, decode[map[string]any](t, rr)["total"])

	rr = env.do(http.MethodPost, base+"/graph/edges", map[string]any{"panel": 5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, base+"/rules", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestModelViewFailure(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})
	id := env.create()
	base := "/api/v1/workbenches/" + id

	require.Equal(t, http.StatusOK, env.upload(id, []byte("{}")).Code)
	env.do(http.MethodPost, base+"/event-types", map[string]any{"event_types": []string{"place order"}})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, base+"/search", nil).Code)

	env.mining.failModel.Store(true)
	rr := env.do(http.MethodPut, base+"/model-view", workbench.ModelView{EventType: "place order"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	resp := decode[map[string]any](t, rr)
	assert.Equal(t, "failed", resp["status"])
	assert.Contains(t, resp["error"], "mining crashed")

	rr = env.do(http.MethodGet, base, nil)
	snap := decode[workbench.Snapshot](t, rr)
	assert.Equal(t, "get-model", snap.LastErrorOp)
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})
	id := env.create()

	rr := env.do(http.MethodPost, "/api/v1/workbenches/"+id+"/upload", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.upload(id, bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = env.upload("missing", []byte("{}"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetRun_Errors(t *testing.T) {
	env := newTestEnv(t, workbench.ManagerConfig{})

	rr := env.do(http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, "/api/v1/runs/"+models.NewRunID(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPaginateSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := paginateSlice(items, PaginationParams{Limit: 2, Offset: 1})
	assert.Equal(t, []int{2, 3}, page.Data)
	assert.True(t, page.HasMore)

	page = paginateSlice(items, PaginationParams{Limit: 10, Offset: 3})
	assert.Equal(t, []int{4, 5}, page.Data)
	assert.False(t, page.HasMore)

	page = paginateSlice(items, PaginationParams{Limit: 10, Offset: 9})
	assert.Equal(t, []int{}, page.Data)
	assert.Equal(t, 5, page.Total)
}

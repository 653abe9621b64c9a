package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/oxminer/internal/metrics"
	"github.com/fidde/oxminer/internal/validate"
	"github.com/fidde/oxminer/pkg/models"
)

const searchPlanPayload = `{"patterns": {"place order": {
	"basic_patterns": ["p1"],
	"interaction_patterns": {"orders": ["p2", "p3"]},
	"custom_patterns": []}}}`

const modelPayload = `{"valid_patterns": {"support": 5, "pretty_pattern_ids": ["a"], "pattern_ids": ["A"]},
	"partitions": {"0": {"support": 2, "pretty_pattern_ids": ["b"], "pattern_ids": ["B"]}}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New(Config{BaseURL: "localhost"})
	assert.Error(t, err)
}

func TestUploadLog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload-ocel", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "log.jsonocel", header.Filename)
		assert.Equal(t, "{}", string(content))

		w.Write([]byte(`{"session_key": "s1", "event_types": ["place order"], "object_types": ["orders"],
			"event_type_object_types": {"place order": ["orders"]}}`))
	})

	resp, err := c.UploadLog(context.Background(), "log.jsonocel", strings.NewReader("{}"))
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionKey)
	assert.Equal(t, []models.ObjectType{"orders"}, resp.RelatedObjectTypes("place order"))
}

func TestConfirmEventTypes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/set-event-types", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("session-key"))
		assert.Empty(t, r.URL.Query().Get("sessionKey"))

		var body []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"place order"}, body)
		w.Write([]byte(searchPlanPayload))
	})

	plan, err := c.ConfirmEventTypes(context.Background(), "s1", []models.EventType{"place order"})
	require.NoError(t, err)
	assert.Equal(t, []models.PatternID{"p2", "p3"}, plan.Bundle("place order").Interaction["orders"])
}

func TestNoSessionSendsNothing(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	ctx := context.Background()

	_, err := c.ConfirmEventTypes(ctx, "", nil)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.LoadTables(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.LoadSearchPlans(ctx, "", 0)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.RegisterCustomPattern(ctx, "", "E", "p")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.StartModelSearch(ctx, "", models.DefaultMiningOptions(), nil)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.StartRuleSearch(ctx, "", models.DefaultMiningOptions(), nil)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.GetFilteredModel(ctx, "", models.FilterRequest{EventType: "E"})
	assert.ErrorIs(t, err, ErrNoSession)
	_, _, err = c.DownloadRules(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)

	assert.Zero(t, calls.Load())
}

func TestLoadSearchPlans_MaxAttrLabels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "7", r.URL.Query().Get("max-attr-labels"))
		w.Write([]byte(searchPlanPayload))
	})

	plan, err := c.LoadSearchPlans(context.Background(), "s1", 7)
	require.NoError(t, err)
	assert.Equal(t, []models.EventType{"place order"}, plan.EventTypes())
}

func TestRegisterCustomPattern(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "E", body["event_type"])
		if body["pattern_id"] == "good" {
			w.Write([]byte(`{"resp": true}`))
			return
		}
		w.Write([]byte(`{"resp": false}`))
	})

	ok, err := c.RegisterCustomPattern(context.Background(), "s1", "E", "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.RegisterCustomPattern(context.Background(), "s1", "E", "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartRuleSearch_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/search-rules", r.URL.Path)
		assert.Equal(t, "3", q.Get("min-support"))
		assert.Equal(t, "true", q.Get("complementary-mode"))
		assert.Equal(t, "false", q.Get("merge-mode"))
		assert.Equal(t, "late delivery", q.Get("target-pattern-description"))
		assert.Equal(t, "2", q.Get("max-rule-ante-length"))
		assert.Equal(t, "1", q.Get("min-rule-ante-support"))

		var plan models.SearchPlan
		require.NoError(t, json.NewDecoder(r.Body).Decode(&plan))
		assert.Contains(t, plan.Patterns, models.EventType("E"))

		w.Write([]byte(`{"model_evaluations": {"E": {"precision": 0.9, "recall": 0.8}}, "all_patterns": {"E": ["p1"]}}`))
	})

	opts := models.MiningOptions{
		MinSupport:               3,
		ComplementaryMode:        true,
		TargetPatternDescription: "late delivery",
		MaxRuleAnteLength:        2,
		MinRuleAnteSupport:       1,
	}
	plan := &models.SearchPlan{Patterns: map[models.EventType]*models.PatternBundle{"E": {}}}
	result, err := c.StartRuleSearch(context.Background(), "s1", opts, plan)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, result.ModelEvaluations["E"].Precision, 1e-9)
}

func TestRemoteError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusGone)
	})

	_, err := c.LoadTables(context.Background(), "s1")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "load-tables", remote.Op)
	assert.Equal(t, http.StatusGone, remote.StatusCode)
	assert.Equal(t, "session expired", remote.Message)
}

func TestGetFilteredModel_Cache(t *testing.T) {
	var calls atomic.Int32
	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get-model":
			calls.Add(1)
			var req models.FilterRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.NotNil(t, req.ObjectTypes)
			w.Write([]byte(modelPayload))
		case "/search":
			w.Write([]byte(`{"model_evaluations": {}, "all_patterns": {}}`))
		}
	}, WithMetrics(m))
	ctx := context.Background()
	req := models.FilterRequest{EventType: "E", ObjectTypes: []models.ObjectType{"orders"}}

	first, err := c.GetFilteredModel(ctx, "s1", req)
	require.NoError(t, err)
	second, err := c.GetFilteredModel(ctx, "s1", req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.CachedModels())

	// another session does not share entries
	_, err = c.GetFilteredModel(ctx, "s2", req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// a new search invalidates the session's models only
	_, err = c.StartModelSearch(ctx, "s1", models.DefaultMiningOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CachedModels())
	_, err = c.GetFilteredModel(ctx, "s1", req)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestGetFilteredModel_SplitPatternIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1,p2", r.URL.Query().Get("split-pattern-ids"))
		var req models.FilterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []models.PatternID{"p1", "p2"}, req.SplitPatternIDs)
		w.Write([]byte(`{"response": {}}`))
	})

	_, err := c.GetFilteredModel(context.Background(), "s1", models.FilterRequest{
		EventType:       "E",
		SplitPatternIDs: []models.PatternID{"p1", "p2"},
	})
	require.NoError(t, err)
}

func TestGetFilteredModel_InvalidPayloadNotCached(t *testing.T) {
	var calls atomic.Int32
	v, err := validate.New(nil, nil)
	require.NoError(t, err)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"partitions": "broken"}`))
	}, WithValidator(v))

	req := models.FilterRequest{EventType: "E"}
	_, err = c.GetFilteredModel(context.Background(), "s1", req)
	assert.ErrorIs(t, err, validate.ErrInvalidPayload)
	_, err = c.GetFilteredModel(context.Background(), "s1", req)
	assert.ErrorIs(t, err, validate.ErrInvalidPayload)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadRules(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("rule,support\n"))
	})

	data, contentType, err := c.DownloadRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, "rule,support\n", string(data))
}

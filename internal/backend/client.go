// Package backend is the HTTP client of the pattern-mining backend.
//
// The session key travels as a query parameter on every call. All query keys
// are kebab-case (session-key, min-support, ...); the older camelCase form
// (sessionKey) is not sent.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fidde/oxminer/internal/metrics"
	"github.com/fidde/oxminer/internal/validate"
	"github.com/fidde/oxminer/pkg/models"
)

// Config configures the backend client.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// DefaultConfig points at a backend on the local machine.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:5000",
		Timeout:   5 * time.Minute,
		CacheSize: 256,
	}
}

// Client talks to the mining backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	validator  *validate.Validator
	cache      *modelCache
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics counts and times every call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithValidator checks payloads before decoding them.
func WithValidator(v *validate.Validator) Option {
	return func(c *Client) { c.validator = v }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}

	cache, err := newModelCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating model cache: %w", err)
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
		cache:      cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UploadLog sends an OCEL file and opens a backend session.
func (c *Client) UploadLog(ctx context.Context, filename string, file io.Reader) (*models.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copying log: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	payload, err := c.do(ctx, "upload-ocel", http.MethodPost, "/upload-ocel", nil, &body, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(validate.UploadResponse, payload); err != nil {
		return nil, err
	}

	var resp models.UploadResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	c.logger.Info("log uploaded",
		"session_key", resp.SessionKey,
		"event_types", len(resp.EventTypes),
		"object_types", len(resp.ObjectTypes))
	return &resp, nil
}

// ConfirmEventTypes selects the event types to analyze and returns their
// search plan.
func (c *Client) ConfirmEventTypes(ctx context.Context, sessionKey string, eventTypes []models.EventType) (*models.SearchPlan, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	if eventTypes == nil {
		eventTypes = []models.EventType{}
	}
	c.cache.purge(sessionKey)

	payload, err := c.postJSON(ctx, "set-event-types", "/set-event-types", sessionQuery(sessionKey), eventTypes)
	if err != nil {
		return nil, err
	}
	return c.decodeSearchPlan(payload)
}

// LoadTables asks the backend to build its tables. The answer is opaque.
func (c *Client) LoadTables(ctx context.Context, sessionKey string) (json.RawMessage, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	payload, err := c.do(ctx, "load-tables", http.MethodGet, "/load-tables", sessionQuery(sessionKey), nil, "")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// LoadSearchPlans returns the default search plans of the confirmed event
// types. maxAttrLabels is sent only when positive.
func (c *Client) LoadSearchPlans(ctx context.Context, sessionKey string, maxAttrLabels int) (*models.SearchPlan, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	query := sessionQuery(sessionKey)
	if maxAttrLabels > 0 {
		query.Set("max-attr-labels", strconv.Itoa(maxAttrLabels))
	}

	payload, err := c.do(ctx, "search-plans", http.MethodGet, "/search-plans", query, nil, "")
	if err != nil {
		return nil, err
	}
	return c.decodeSearchPlan(payload)
}

// RegisterCustomPattern submits a user-defined pattern. The result is the
// backend's acknowledgement: false means the pattern was not accepted.
func (c *Client) RegisterCustomPattern(ctx context.Context, sessionKey string, eventType models.EventType, patternID models.PatternID) (bool, error) {
	if sessionKey == "" {
		return false, ErrNoSession
	}
	body := struct {
		EventType models.EventType `json:"event_type"`
		PatternID models.PatternID `json:"pattern_id"`
	}{eventType, patternID}

	payload, err := c.postJSON(ctx, "register-custom-pattern", "/register-custom-pattern", sessionQuery(sessionKey), body)
	if err != nil {
		return false, err
	}
	var ack models.Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return false, fmt.Errorf("decoding acknowledgement: %w", err)
	}
	return ack.Resp, nil
}

// StartModelSearch mines a model over the filtered search plan.
func (c *Client) StartModelSearch(ctx context.Context, sessionKey string, opts models.MiningOptions, plan *models.SearchPlan) (*models.MiningResult, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	query := sessionQuery(sessionKey)
	setSearchOptions(query, opts)
	return c.search(ctx, "search", "/search", sessionKey, query, plan)
}

// StartRuleSearch mines rules over the filtered search plan.
func (c *Client) StartRuleSearch(ctx context.Context, sessionKey string, opts models.MiningOptions, plan *models.SearchPlan) (*models.MiningResult, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	query := sessionQuery(sessionKey)
	setSearchOptions(query, opts)
	query.Set("target-pattern-description", opts.TargetPatternDescription)
	query.Set("max-rule-ante-length", strconv.Itoa(opts.MaxRuleAnteLength))
	query.Set("min-rule-ante-support", strconv.Itoa(opts.MinRuleAnteSupport))
	return c.search(ctx, "search-rules", "/search-rules", sessionKey, query, plan)
}

// GetFilteredModel returns the raw model of one event type restricted to the
// requested object types. The payload is a model response, or a split
// response in rule mode; the caller decodes it.
func (c *Client) GetFilteredModel(ctx context.Context, sessionKey string, req models.FilterRequest) ([]byte, error) {
	if sessionKey == "" {
		return nil, ErrNoSession
	}
	if req.ObjectTypes == nil {
		req.ObjectTypes = []models.ObjectType{}
	}

	key, cacheable := keyFor(sessionKey, req)
	if cacheable {
		if payload, ok := c.cache.get(key); ok {
			c.metrics.ObserveCache(true)
			return payload, nil
		}
		if c.cache != nil {
			c.metrics.ObserveCache(false)
		}
	}

	query := sessionQuery(sessionKey)
	if len(req.SplitPatternIDs) > 0 {
		ids := make([]string, len(req.SplitPatternIDs))
		for i, id := range req.SplitPatternIDs {
			ids[i] = string(id)
		}
		query.Set("split-pattern-ids", strings.Join(ids, ","))
	}

	payload, err := c.postJSON(ctx, "get-model", "/get-model", query, req)
	if err != nil {
		return nil, err
	}

	schema := validate.ModelResponse
	if gjson.GetBytes(payload, "response").Exists() {
		schema = validate.SplitResponse
	}
	if err := c.validator.Validate(schema, payload); err != nil {
		return nil, err
	}

	if cacheable {
		c.cache.add(key, payload)
	}
	return payload, nil
}

// DownloadRules returns the mined rules as a file.
func (c *Client) DownloadRules(ctx context.Context, sessionKey string) ([]byte, string, error) {
	if sessionKey == "" {
		return nil, "", ErrNoSession
	}
	started := time.Now()
	resp, err := c.send(ctx, http.MethodGet, "/download-rules", sessionQuery(sessionKey), nil, "")
	if err != nil {
		c.metrics.ObserveBackend("download-rules", started, err)
		return nil, "", fmt.Errorf("backend download-rules: %w", err)
	}
	defer resp.Body.Close()

	data, err := c.read("download-rules", resp)
	c.metrics.ObserveBackend("download-rules", started, err)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// CachedModels reports the number of cached filtered-model payloads.
func (c *Client) CachedModels() int {
	return c.cache.len()
}

func (c *Client) search(ctx context.Context, op, path, sessionKey string, query url.Values, plan *models.SearchPlan) (*models.MiningResult, error) {
	if plan == nil {
		plan = &models.SearchPlan{}
	}
	c.cache.purge(sessionKey)

	payload, err := c.postJSON(ctx, op, path, query, plan)
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(validate.MiningResult, payload); err != nil {
		return nil, err
	}

	var result models.MiningResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding mining result: %w", err)
	}
	c.logger.Info("mining run completed",
		"op", op,
		"session_key", sessionKey,
		"event_types", len(result.ModelEvaluations))
	return &result, nil
}

func (c *Client) decodeSearchPlan(payload []byte) (*models.SearchPlan, error) {
	if err := c.validator.Validate(validate.SearchPlan, payload); err != nil {
		return nil, err
	}
	var plan models.SearchPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("decoding search plan: %w", err)
	}
	if plan.Patterns == nil {
		plan.Patterns = map[models.EventType]*models.PatternBundle{}
	}
	return &plan, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, query url.Values, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, query, bytes.NewReader(data), "application/json")
}

// do performs one call and returns the body of a 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	started := time.Now()
	resp, err := c.send(ctx, method, path, query, body, contentType)
	if err != nil {
		c.metrics.ObserveBackend(op, started, err)
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return nil, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()

	payload, err := c.read(op, resp)
	c.metrics.ObserveBackend(op, started, err)
	if err != nil {
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return nil, err
	}
	c.logger.Debug("backend request", "op", op, "status", resp.StatusCode, "duration", time.Since(started))
	return payload, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

func (c *Client) read(op string, resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("backend %s: reading body: %w", op, err)
	}
	return data, nil
}

func sessionQuery(sessionKey string) url.Values {
	return url.Values{"session-key": []string{sessionKey}}
}

func setSearchOptions(query url.Values, opts models.MiningOptions) {
	query.Set("min-support", strconv.Itoa(opts.MinSupport))
	query.Set("complementary-mode", strconv.FormatBool(opts.ComplementaryMode))
	query.Set("merge-mode", strconv.FormatBool(opts.MergeMode))
}

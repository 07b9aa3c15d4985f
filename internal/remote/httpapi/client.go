// Package httpapi is the HTTP binding of the remote task authority.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const HeaderRequestID = "X-Request-ID"

// Client implements remote.Authority over HTTP. A 401 answer drops the token
// for the rest of the client's life; OnUnauthorized is told once.
type Client struct {
	base  *url.URL
	log   *slog.Logger
	newID func() string

	mu             sync.Mutex
	plain          *http.Client
	authed         *http.Client
	onUnauthorized func()
}

var _ remote.Authority = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient sets the underlying client. The bearer transport wraps its
// Transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.plain = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithRequestIDs(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

func OnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func New(baseURL, token string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: want http or https", baseURL)
	}
	c := &Client{
		base:  u,
		log:   slog.New(slog.DiscardHandler),
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	if c.plain == nil {
		c.plain = &http.Client{Timeout: timeout}
	}
	if token = strings.TrimSpace(token); token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.plain)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		c.authed = oauth2.NewClient(ctx, src)
		c.authed.Timeout = c.plain.Timeout
	}
	return c, nil
}

// Authenticated reports whether requests still carry a token.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed != nil
}

func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authed != nil {
		return c.authed
	}
	return c.plain
}

func (c *Client) dropToken() {
	c.mu.Lock()
	had := c.authed != nil
	c.authed = nil
	fn := c.onUnauthorized
	c.mu.Unlock()
	if had {
		c.log.Warn("token rejected; continuing unauthenticated")
		if fn != nil {
			fn()
		}
	}
}

// call describes one request. kind and id name the entity for NotFound.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	kind   string
	id     string
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	// cl.path is already escaped; keep it verbatim on the wire.
	u := *c.base
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + cl.path
	p, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return apperr.Validation("bad request path %q", cl.path)
	}
	u.Path = p
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return apperr.Validation("encode request: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return &apperr.TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rid := c.newID()
	req.Header.Set(HeaderRequestID, rid)

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", cl.method, "path", cl.path, "request_id", rid, "err", err)
		return &apperr.TransportError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransportError{Status: resp.StatusCode, Err: err}
	}
	c.log.Debug("request", "method", cl.method, "path", cl.path, "status", resp.StatusCode,
		"request_id", rid, "elapsed", time.Since(start))

	var env Envelope
	jsonBody := strings.Contains(resp.Header.Get("Content-Type"), "json")
	if jsonBody {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return &apperr.TransportError{Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	} else {
		env.Message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode >= 300 || (jsonBody && !env.Success) {
		return c.statusError(resp.StatusCode, env, cl)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &apperr.TransportError{Status: resp.StatusCode, Message: "malformed response data", Err: err}
	}
	return nil
}

func (c *Client) statusError(status int, env Envelope, cl call) error {
	code, msg := "", env.Message
	if env.Error != nil {
		code = env.Error.Code
		if env.Error.Message != "" {
			msg = env.Error.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case code == CodeBusy:
		return fmt.Errorf("%s: %w", msg, apperr.ErrBusy)
	case status == http.StatusUnauthorized:
		c.dropToken()
		return &apperr.TransportError{Status: status, Message: msg, Unauthorized: true}
	case status == http.StatusNotFound:
		kind := cl.kind
		if kind == "" {
			kind = "resource"
		}
		return apperr.NotFound(kind, cl.id)
	case status == http.StatusConflict:
		return &apperr.ConflictError{Code: code, Message: msg}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &apperr.ValidationError{Code: code, Message: msg}
	default:
		// Includes success=false with a 2xx status.
		return &apperr.TransportError{Status: status, Message: msg}
	}
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func esc(id string) string { return url.PathEscape(id) }

// Tasks

func (c *Client) ListTasks(ctx context.Context, q remote.TaskQuery) (model.Page[model.Task], error) {
	v := pageQuery(q.Limit, q.Offset)
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	var out TaskList
	if err := c.do(ctx, call{method: http.MethodGet, path: PathTasks, query: v}, &out); err != nil {
		return model.Page[model.Task]{}, err
	}
	return out.AsPage(), nil
}

func (c *Client) CreateTask(ctx context.Context, req remote.CreateTaskRequest) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, call{method: http.MethodPost, path: PathTasks, body: req}, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, taskID string, patch remote.TaskPatch) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, call{method: http.MethodPut, path: PathTasks + "/" + esc(taskID), body: patch, kind: "task", id: taskID}, &out)
	return out, err
}

func (c *Client) CompleteTask(ctx context.Context, taskID string) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, call{method: http.MethodPost, path: PathTasks + "/" + esc(taskID) + "/complete", kind: "task", id: taskID}, &out)
	return out, err
}

func (c *Client) SetFocusTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return c.do(ctx, call{method: http.MethodPost, path: PathClearFocus}, nil)
	}
	return c.do(ctx, call{method: http.MethodPost, path: PathTasks + "/" + esc(taskID) + "/focus", kind: "task", id: taskID}, nil)
}

// Records

func (c *Client) ListTaskRecords(ctx context.Context, q remote.RecordQuery) (model.Page[model.TaskRecord], error) {
	v := pageQuery(q.Limit, q.Offset)
	if q.TaskID != "" {
		v.Set("taskId", q.TaskID)
	}
	var out RecordList
	if err := c.do(ctx, call{method: http.MethodGet, path: PathTaskRecords, query: v}, &out); err != nil {
		return model.Page[model.TaskRecord]{}, err
	}
	return out.AsPage(), nil
}

func (c *Client) ArchiveRecord(ctx context.Context, recordID string) error {
	return c.do(ctx, call{method: http.MethodPost, path: PathTaskRecords + "/" + esc(recordID) + "/archive", kind: "record", id: recordID}, nil)
}

func (c *Client) TerminateRecord(ctx context.Context, recordID string) error {
	return c.do(ctx, call{method: http.MethodPost, path: PathTaskRecords + "/" + esc(recordID) + "/terminate", kind: "record", id: recordID}, nil)
}

// Edit row

func (c *Client) GetEditRowState(ctx context.Context, taskID string) (model.EditRowState, error) {
	var out model.EditRowState
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   PathEditStateCurrent,
		query:  url.Values{"taskId": {taskID}},
		kind:   "edit row",
		id:     taskID,
	}, &out)
	return out, err
}

// SubmitEditRowOperation posts start operations to the creation endpoint and
// everything else to the state endpoint.
func (c *Client) SubmitEditRowOperation(ctx context.Context, req remote.OperationRequest) (remote.OperationResult, error) {
	path := PathEditState
	if req.Kind == remote.OpStart {
		path = PathCreateOperation
	}
	var out remote.OperationResult
	err := c.do(ctx, call{method: http.MethodPost, path: path, body: req, kind: "edit row", id: req.TaskID}, &out)
	return out, err
}

// Special rows

func (c *Client) ListSpecialRows(ctx context.Context) ([]model.SpecialEditRow, error) {
	var out SpecialRowList
	if err := c.do(ctx, call{method: http.MethodGet, path: PathSpecialRows}, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) CreateSpecialRow(ctx context.Context, req remote.SpecialRowRequest) (model.SpecialEditRow, error) {
	var out model.SpecialEditRow
	err := c.do(ctx, call{method: http.MethodPost, path: PathSpecialRows, body: req, kind: "task", id: req.TaskID}, &out)
	return out, err
}

func (c *Client) SubmitSpecialRowOperation(ctx context.Context, rowID string, typ model.SpecialRowType, at time.Time) (remote.SpecialResult, error) {
	var out remote.SpecialResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   PathSpecialRows + "/" + esc(rowID) + "/handle",
		body:   SpecialHandleBody{OperationType: typ, Timestamp: at.UTC()},
		kind:   "special row",
		id:     rowID,
	}, &out)
	return out, err
}

// Warehouse

func (c *Client) ListWarehouseTasks(ctx context.Context) ([]model.WarehouseTask, error) {
	var out WarehouseList
	if err := c.do(ctx, call{method: http.MethodGet, path: PathWarehouse}, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) CreateWarehouseTask(ctx context.Context, req remote.CreateWarehouseTaskRequest) (model.WarehouseTask, error) {
	var out model.WarehouseTask
	kind, id := "", ""
	if req.ParentTaskID != nil {
		kind, id = "warehouse task", *req.ParentTaskID
	}
	err := c.do(ctx, call{method: http.MethodPost, path: PathWarehouse, body: req, kind: kind, id: id}, &out)
	return out, err
}

func (c *Client) UpdateWarehouseTask(ctx context.Context, taskID string, patch remote.WarehousePatch) (model.WarehouseTask, error) {
	var out model.WarehouseTask
	err := c.do(ctx, call{method: http.MethodPut, path: PathWarehouse + "/" + esc(taskID), body: patch, kind: "warehouse task", id: taskID}, &out)
	return out, err
}

func (c *Client) DeleteWarehouseTask(ctx context.Context, taskID string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: PathWarehouse + "/" + esc(taskID), kind: "warehouse task", id: taskID}, nil)
}

func (c *Client) CompleteWarehouseTask(ctx context.Context, taskID string) (model.WarehouseTask, error) {
	var out model.WarehouseTask
	err := c.do(ctx, call{method: http.MethodPost, path: PathWarehouse + "/" + esc(taskID) + "/complete", kind: "warehouse task", id: taskID}, &out)
	return out, err
}

func (c *Client) ReorderWarehouse(ctx context.Context, entries []remote.ReorderEntry) error {
	return c.do(ctx, call{method: http.MethodPost, path: PathWarehouseReorder, body: ReorderBody{Tasks: entries}}, nil)
}

func (c *Client) ExtractTask(ctx context.Context, taskID string) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, call{method: http.MethodPost, path: PathWarehouse + "/" + esc(taskID) + "/extract", kind: "warehouse task", id: taskID}, &out)
	return out, err
}

// IsUnauthorized reports whether err came from a rejected token.
func IsUnauthorized(err error) bool {
	var t *apperr.TransportError
	return errors.As(err, &t) && t.Unauthorized
}

// Package devserver serves a remote.Authority over the HTTP routes the
// httpapi client speaks. It exists for local development and for testing the
// client end to end; it is not the production service.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/remote/httpapi"

	"github.com/gin-gonic/gin"
)

const BasePath = "/api/v1"

type Server struct {
	auth   remote.Authority
	token  string
	log    *slog.Logger
	now    func() time.Time
	router *gin.Engine
}

type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every API route.
func WithToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(auth remote.Authority, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		auth: auth,
		log:  slog.New(slog.DiscardHandler),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())
	s.router = router

	api := router.Group(BasePath, s.requireToken())
	{
		api.GET(httpapi.PathTasks, s.listTasks)
		api.POST(httpapi.PathTasks, s.createTask)
		api.PUT(httpapi.PathTasks+"/:id", s.updateTask)
		api.POST(httpapi.PathTasks+"/:id/complete", s.completeTask)
		api.POST(httpapi.PathTasks+"/:id/focus", s.focusTask)
		api.POST(httpapi.PathClearFocus, s.clearFocus)

		api.GET(httpapi.PathTaskRecords, s.listRecords)
		api.POST(httpapi.PathTaskRecords+"/:id/archive", s.archiveRecord)
		api.POST(httpapi.PathTaskRecords+"/:id/terminate", s.terminateRecord)

		api.GET(httpapi.PathEditStateCurrent, s.editState)
		api.POST(httpapi.PathCreateOperation, s.submitOperation)
		api.POST(httpapi.PathEditState, s.submitOperation)

		api.GET(httpapi.PathSpecialRows, s.listSpecialRows)
		api.POST(httpapi.PathSpecialRows, s.createSpecialRow)
		api.POST(httpapi.PathSpecialRows+"/:id/handle", s.handleSpecialRow)

		api.GET(httpapi.PathWarehouse, s.listWarehouse)
		api.POST(httpapi.PathWarehouse, s.createWarehouse)
		api.POST(httpapi.PathWarehouseReorder, s.reorderWarehouse)
		api.PUT(httpapi.PathWarehouse+"/:id", s.updateWarehouse)
		api.DELETE(httpapi.PathWarehouse+"/:id", s.deleteWarehouse)
		api.POST(httpapi.PathWarehouse+"/:id/complete", s.completeWarehouse)
		api.POST(httpapi.PathWarehouse+"/:id/extract", s.extractWarehouse)
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("devserver listening", "addr", ln.Addr().String(), "base", BasePath, "auth", s.token != "")
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		if rid := c.GetHeader(httpapi.HeaderRequestID); rid != "" {
			c.Header(httpapi.HeaderRequestID, rid)
		}
		c.Next()
		s.log.Debug("http", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "request_id", c.GetHeader(httpapi.HeaderRequestID),
			"elapsed", s.now().Sub(start))
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") || strings.TrimPrefix(h, "Bearer ") != s.token {
			s.writeError(c, http.StatusUnauthorized, httpapi.CodeUnauthorized, "missing or invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) ok(c *gin.Context, status int, data any) {
	env := gin.H{"success": true, "timestamp": s.now().UTC().Format(time.RFC3339)}
	if data != nil {
		env["data"] = data
	}
	c.JSON(status, env)
}

func (s *Server) writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, httpapi.Envelope{
		Success:   false,
		Message:   msg,
		Error:     &httpapi.ErrorBody{Code: code, Message: msg},
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// fail maps the taxonomy onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		v  *apperr.ValidationError
		cf *apperr.ConflictError
		nf *apperr.NotFoundError
		t  *apperr.TransportError
	)
	switch {
	case errors.Is(err, apperr.ErrBusy):
		s.writeError(c, http.StatusConflict, httpapi.CodeBusy, err.Error())
	case errors.As(err, &v):
		s.writeError(c, http.StatusBadRequest, orDefault(v.Code, httpapi.CodeValidation), v.Message)
	case errors.As(err, &cf):
		s.writeError(c, http.StatusConflict, orDefault(cf.Code, httpapi.CodeConflict), cf.Message)
	case errors.As(err, &nf):
		s.writeError(c, http.StatusNotFound, httpapi.CodeNotFound, nf.Error())
	case errors.As(err, &t) && t.Unauthorized:
		s.writeError(c, http.StatusUnauthorized, httpapi.CodeUnauthorized, t.Error())
	case errors.As(err, &t) && t.Status >= 500:
		s.writeError(c, t.Status, httpapi.CodeInternal, t.Error())
	case errors.As(err, &t):
		s.writeError(c, http.StatusServiceUnavailable, httpapi.CodeInternal, t.Error())
	default:
		s.writeError(c, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
	}
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.writeError(c, http.StatusBadRequest, httpapi.CodeValidation, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) paging(c *gin.Context) (limit, offset int, ok bool) {
	limit, ok1 := queryInt(c, "limit")
	offset, ok2 := queryInt(c, "offset")
	if !ok1 || !ok2 {
		s.writeError(c, http.StatusBadRequest, httpapi.CodeValidation, "limit and offset must be non-negative integers")
		return 0, 0, false
	}
	return limit, offset, true
}

// Tasks

func (s *Server) listTasks(c *gin.Context) {
	limit, offset, ok := s.paging(c)
	if !ok {
		return
	}
	p, err := s.auth.ListTasks(c.Request.Context(), remote.TaskQuery{
		Search: c.Query("search"),
		Status: model.TaskStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, httpapi.TaskList{Tasks: p.Items, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages})
}

func (s *Server) createTask(c *gin.Context) {
	var req remote.CreateTaskRequest
	if !s.bind(c, &req) {
		return
	}
	t, err := s.auth.CreateTask(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, t)
}

func (s *Server) updateTask(c *gin.Context) {
	var p remote.TaskPatch
	if !s.bind(c, &p) {
		return
	}
	t, err := s.auth.UpdateTask(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, t)
}

func (s *Server) completeTask(c *gin.Context) {
	t, err := s.auth.CompleteTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, t)
}

func (s *Server) focusTask(c *gin.Context) {
	if err := s.auth.SetFocusTask(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

func (s *Server) clearFocus(c *gin.Context) {
	if err := s.auth.SetFocusTask(c.Request.Context(), ""); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

// Records

func (s *Server) listRecords(c *gin.Context) {
	limit, offset, ok := s.paging(c)
	if !ok {
		return
	}
	p, err := s.auth.ListTaskRecords(c.Request.Context(), remote.RecordQuery{
		TaskID: c.Query("taskId"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, httpapi.RecordList{Records: p.Items, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages})
}

func (s *Server) archiveRecord(c *gin.Context) {
	if err := s.auth.ArchiveRecord(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

func (s *Server) terminateRecord(c *gin.Context) {
	if err := s.auth.TerminateRecord(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

// Edit row

func (s *Server) editState(c *gin.Context) {
	id := strings.TrimSpace(c.Query("taskId"))
	if id == "" {
		s.writeError(c, http.StatusBadRequest, httpapi.CodeValidation, "taskId is required")
		return
	}
	st, err := s.auth.GetEditRowState(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, st)
}

func (s *Server) submitOperation(c *gin.Context) {
	var req remote.OperationRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.auth.SubmitEditRowOperation(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, res)
}

// Special rows

func (s *Server) listSpecialRows(c *gin.Context) {
	rows, err := s.auth.ListSpecialRows(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows == nil {
		rows = []model.SpecialEditRow{}
	}
	s.ok(c, http.StatusOK, httpapi.SpecialRowList{Rows: rows})
}

func (s *Server) createSpecialRow(c *gin.Context) {
	var req remote.SpecialRowRequest
	if !s.bind(c, &req) {
		return
	}
	row, err := s.auth.CreateSpecialRow(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, row)
}

func (s *Server) handleSpecialRow(c *gin.Context) {
	var body httpapi.SpecialHandleBody
	if !s.bind(c, &body) {
		return
	}
	res, err := s.auth.SubmitSpecialRowOperation(c.Request.Context(), c.Param("id"), body.OperationType, body.Timestamp)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, res)
}

// Warehouse

func (s *Server) listWarehouse(c *gin.Context) {
	tasks, err := s.auth.ListWarehouseTasks(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []model.WarehouseTask{}
	}
	s.ok(c, http.StatusOK, httpapi.WarehouseList{Tasks: tasks})
}

func (s *Server) createWarehouse(c *gin.Context) {
	var req remote.CreateWarehouseTaskRequest
	if !s.bind(c, &req) {
		return
	}
	t, err := s.auth.CreateWarehouseTask(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, t)
}

func (s *Server) updateWarehouse(c *gin.Context) {
	var p remote.WarehousePatch
	if !s.bind(c, &p) {
		return
	}
	t, err := s.auth.UpdateWarehouseTask(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, t)
}

func (s *Server) deleteWarehouse(c *gin.Context) {
	if err := s.auth.DeleteWarehouseTask(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

func (s *Server) completeWarehouse(c *gin.Context) {
	t, err := s.auth.CompleteWarehouseTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, t)
}

func (s *Server) reorderWarehouse(c *gin.Context) {
	var body httpapi.ReorderBody
	if !s.bind(c, &body) {
		return
	}
	if err := s.auth.ReorderWarehouse(c.Request.Context(), body.Tasks); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, nil)
}

func (s *Server) extractWarehouse(c *gin.Context) {
	t, err := s.auth.ExtractTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, t)
}

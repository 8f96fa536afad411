package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// statusClientClosed is reported when the caller went away mid-execution
const statusClientClosed = 499

// Handlers contains all HTTP handlers
type Handlers struct {
	executor  sandbox.Executor
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	logger    *zap.Logger
	maxScript int
	started   time.Time
}

// NewHandlers creates a new handler set. maxScript bounds script sources in
// bytes; 0 uses the default limit.
func NewHandlers(executor sandbox.Executor, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *zap.Logger, maxScript int) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		executor:  executor,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger.Named("http"),
		maxScript: maxScript,
		started:   time.Now(),
	}
}

// ExecuteRequest is the body of POST /execute
type ExecuteRequest struct {
	Script string `json:"script"`
	HTML   string `json:"html,omitempty"`   // Optional document markup
	Select string `json:"select,omitempty"` // XPath choosing the mounted nodes
}

// ExecuteResponse reports one guest execution
type ExecuteResponse struct {
	ExecutionID string              `json:"execution_id,omitempty"`
	Status      string              `json:"status"`
	Value       interface{}         `json:"value"`
	Console     []sandbox.LogEntry  `json:"console"`
	DOMChanges  []sandbox.DOMChange `json:"dom_changes,omitempty"`
	DurationMs  float64             `json:"duration_ms"`
	Error       string              `json:"error,omitempty"`
	TraceID     string              `json:"trace_id,omitempty"`
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"status":  "online",
		"service": "membrane",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	stats := h.executor.Stats()
	status, code := "healthy", http.StatusOK
	if stats.Closed {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	respond(c, code, gin.H{
		"status":         status,
		"pool":           stats,
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// Execute runs a guest script from a JSON body
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, bodyStatus(err), err)
		return
	}
	h.execute(c, []byte(req.Script), []byte(req.HTML), req.Select)
}

// ExecuteFile runs a guest script uploaded as multipart form data. The
// "script" part is required; "html" and "select" are optional.
func (h *Handlers) ExecuteFile(c *gin.Context) {
	script, err := formFile(c, "script")
	if err != nil {
		fail(c, bodyStatus(err), err)
		return
	}
	if script == nil {
		fail(c, http.StatusBadRequest, errors.New("script file is required"))
		return
	}
	html, err := formFile(c, "html")
	if err != nil {
		fail(c, bodyStatus(err), err)
		return
	}
	h.execute(c, script, html, c.PostForm("select"))
}

func (h *Handlers) execute(c *gin.Context, script, html []byte, selector string) {
	if err := utils.ValidateScript(script, h.maxScript); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	var dom *sandbox.DOM
	if len(html) > 0 {
		parsed, err := sandbox.ParseHTML(html, sandbox.HTMLOptions{Select: selector})
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		dom = parsed
	}

	span, ctx := h.tracer.Start(c.Request.Context(), "sandbox.execute")
	defer span.End()

	result, err := h.executor.Execute(ctx, string(script), dom)
	resp := ExecuteResponse{
		Status:  sandbox.StatusSuccess,
		Console: []sandbox.LogEntry{},
		TraceID: span.TraceID.String(),
	}
	if result != nil {
		resp.ExecutionID = result.ExecutionID
		resp.Value = result.Value
		resp.Console = result.Console
		resp.DOMChanges = result.DOMChanges
		resp.DurationMs = float64(result.Duration) / float64(time.Millisecond)
		span.Set(
			zap.String("execution_id", result.ExecutionID),
			zap.Int("console.entries", len(result.Console)),
			zap.Int("dom.changes", len(result.DOMChanges)))
	}
	if err == nil {
		respond(c, http.StatusOK, resp)
		return
	}

	status, code := executionStatus(err)
	span.Fail(err, code)
	resp.Status = status
	resp.Error = err.Error()
	h.logger.Debug("execution failed",
		zap.String("execution_id", resp.ExecutionID),
		zap.String("status", status),
		zap.Error(err))
	_ = c.Error(err)
	respond(c, code, resp)
}

// PoolStats reports sandbox pool occupancy
func (h *Handlers) PoolStats(c *gin.Context) {
	respond(c, http.StatusOK, h.executor.Stats())
}

// executionStatus maps an execution error to a result status and HTTP code
func executionStatus(err error) (string, int) {
	switch {
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return sandbox.StatusTimeout, http.StatusRequestTimeout
	case errors.Is(err, sandbox.ErrExecutionCancelled):
		return sandbox.StatusCancelled, statusClientClosed
	case errors.Is(err, sandbox.ErrTimeout), errors.Is(err, sandbox.ErrPoolClosed):
		return sandbox.StatusError, http.StatusServiceUnavailable
	default:
		return sandbox.StatusError, http.StatusUnprocessableEntity
	}
}

// bodyStatus maps a request body error to an HTTP code
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// formFile reads the named multipart file, returning nil when it is absent
func formFile(c *gin.Context, name string) ([]byte, error) {
	header, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return readPart(header)
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/membrane/internal/shared/id"
)

func newObservedTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New("membrane", zap.New(core)), logs
}

func TestStartJoinsTrace(t *testing.T) {
	tracer, _ := newObservedTracer(t)
	defer tracer.Close()

	request, ctx := tracer.Start(context.Background(), "POST /api/execute")
	execution, execCtx := tracer.Start(ctx, "sandbox.execute")

	assert.NotEmpty(t, request.TraceID)
	assert.Empty(t, request.ParentID)
	assert.Equal(t, request.TraceID, execution.TraceID)
	assert.Equal(t, request.SpanID, execution.ParentID)
	assert.NotEqual(t, request.SpanID, execution.SpanID)

	current, ok := FromContext(execCtx)
	require.True(t, ok)
	assert.Equal(t, execution.SpanContext, current)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestSpanEndSubmitsOnce(t *testing.T) {
	tracer, logs := newObservedTracer(t)

	ok, _ := tracer.Start(context.Background(), "sandbox.execute")
	ok.Set(zap.String("execution_id", "exec_1"), zap.Int("console.entries", 2))
	ok.End()
	ok.End()

	failed, _ := tracer.Start(context.Background(), "sandbox.execute")
	failed.Fail(errors.New("execution timeout exceeded"), http.StatusRequestTimeout)
	failed.End()

	tracer.Close()
	tracer.Close()

	late, _ := tracer.Start(context.Background(), "after close")
	late.End()

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0].ContextMap()
	assert.Equal(t, "exec_1", first["execution_id"])
	assert.EqualValues(t, 2, first["console.entries"])
	assert.Equal(t, "membrane", first["service"])

	second := logs.All()[1]
	assert.Equal(t, zapcore.ErrorLevel, second.Level)
	assert.EqualValues(t, http.StatusRequestTimeout, second.ContextMap()["status"])
	assert.Equal(t, "execution timeout exceeded", second.ContextMap()["error"])
}

func TestInjectExtract(t *testing.T) {
	sc := SpanContext{TraceID: id.TraceID("trace_1"), SpanID: id.SpanID("s1")}

	h := http.Header{}
	Inject(ContextWith(context.Background(), sc), h)
	assert.Equal(t, "trace_1", h.Get(HeaderTraceID))
	assert.Equal(t, sc, Extract(h))

	empty := http.Header{}
	Inject(context.Background(), empty)
	assert.Empty(t, empty)
	assert.False(t, Extract(empty).Valid())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObservedTracer(t)

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	var seen SpanContext
	router.GET("/health", func(c *gin.Context) {
		seen, _ = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("pool closed"))
		c.Status(http.StatusServiceUnavailable)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "incoming")
	req.Header.Set(HeaderSpanID, "caller")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/fail", nil))
	tracer.Close()

	assert.Equal(t, id.TraceID("incoming"), seen.TraceID)
	assert.Equal(t, "incoming", rec.Header().Get(HeaderTraceID))
	assert.Equal(t, seen.SpanID.String(), rec.Header().Get(HeaderSpanID))
	assert.NotEmpty(t, rec2.Header().Get(HeaderTraceID))

	require.Equal(t, 2, logs.Len())
	health := logs.All()[0].ContextMap()
	assert.Equal(t, "GET /health", health["operation"])
	assert.Equal(t, "caller", health["parent_id"])
	assert.EqualValues(t, http.StatusNoContent, health["status"])

	fail := logs.All()[1]
	assert.Equal(t, zapcore.ErrorLevel, fail.Level)
	assert.EqualValues(t, http.StatusServiceUnavailable, fail.ContextMap()["status"])
}

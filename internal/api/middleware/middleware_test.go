package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw...)
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, string(body))
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerClient(t *testing.T) {
	router := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, serve(router, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

func TestGlobalRateLimit(t *testing.T) {
	router := newRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	router := newRouter(BodyLimit(8))

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("short")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "short", rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("much too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Unknown length is caught while reading.
	req := httptest.NewRequest(http.MethodPost, "/echo", io.NopCloser(strings.NewReader("much too long")))
	req.ContentLength = -1
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(router, req).Code)
}

func TestCORS(t *testing.T) {
	router := newRouter(CORS(DefaultCORSConfig()))
	// httptest requests target example.com, so the origin must differ from
	// it to count as cross-origin.
	const origin = "http://client.test"

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := serve(router, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", origin)
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Trace-Id")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Span-Id")

	// Same-origin requests pass through untouched.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
}

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func TestDecompress(t *testing.T) {
	router := newRouter(Decompress(), BodyLimit(16))

	req := httptest.NewRequest(http.MethodPost, "/echo", gzipped(t, "hello"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(enc.EncodeAll([]byte("zstd body"), nil)))
	req.Header.Set("Content-Encoding", "zstd")
	rec = serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zstd body", rec.Body.String())

	// The limit applies to the decoded body.
	req = httptest.NewRequest(http.MethodPost, "/echo", gzipped(t, strings.Repeat("a", 1024)))
	req.Header.Set("Content-Encoding", "gzip")
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(router, req).Code)
}

func TestDecompressRejects(t *testing.T) {
	router := newRouter(Decompress())

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("plain"))
	req.Header.Set("Content-Encoding", "gzip")
	assert.Equal(t, http.StatusBadRequest, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("plain"))
	req.Header.Set("Content-Encoding", "br")
	assert.Equal(t, http.StatusUnsupportedMediaType, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("plain"))
	assert.Equal(t, "plain", serve(router, req).Body.String())
}

func TestAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	router := newRouter(APIKey(string(hash)))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
		{name: "wrong key", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, serve(router, req).Code)
		})
	}

	open := newRouter(APIKey(""))
	assert.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
}

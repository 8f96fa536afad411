package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Sandbox.PoolSize = 1
	cfg.Sandbox.WatchPolicy = false
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func execute(t *testing.T, s *Server, script string, header ...string) (int, map[string]interface{}) {
	t.Helper()
	payload, err := sonic.Marshal(map[string]string{"script": script})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	code, body := execute(t, s, "'ok'")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["value"])

	for _, path := range []string{"/", "/health", "/sandbox/stats", "/metrics/json"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "membrane_executions_total")
}

func TestServerAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := testConfig(t)
	cfg.Server.APIKeyHash = string(hash)
	s := newTestServer(t, cfg)

	code, _ := execute(t, s, "1")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := execute(t, s, "1", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["value"])

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerReload(t *testing.T) {
	dir := t.TempDir()
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.Mkdir(scripts, 0o755))
	write(t, filepath.Join(scripts, "greeting.js"), "var greeting = 'hi'; var secret = 42")
	policy := filepath.Join(dir, "policy.yaml")
	write(t, policy, "globals: [greeting]\n")

	cfg := testConfig(t)
	cfg.Sandbox.PolicyFile = policy
	cfg.Sandbox.HostScriptDir = scripts
	s := newTestServer(t, cfg)

	_, body := execute(t, s, "typeof secret + ':' + greeting")
	assert.Equal(t, "undefined:hi", body["value"])

	write(t, filepath.Join(scripts, "greeting.js"), "var greeting = 'hello'; var secret = 42")
	write(t, policy, "globals: [greeting, secret]\n")
	require.NoError(t, s.Reload(context.Background()))

	_, body = execute(t, s, "secret + ':' + greeting")
	assert.Equal(t, "42:hello", body["value"])

	// A broken policy leaves the running pool in place
	write(t, policy, "distortions:\n  - path: greeting\n    action: explode\n")
	err := s.Reload(context.Background())
	assert.ErrorIs(t, err, sandbox.ErrInvalidPolicy)
	_, body = execute(t, s, "greeting")
	assert.Equal(t, "hello", body["value"])
}

func TestNewServerRejectsBadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sandbox.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestServerBridgeConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.URL = "http://127.0.0.1:1"
	sc, err := SandboxConfig(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, sc.Bridge)

	cfg.Bridge.URL = "not a url"
	_, err = SandboxConfig(context.Background(), cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestPolicyFingerprint(t *testing.T) {
	assert.Empty(t, PolicyFingerprint(nil))

	a := PolicyFingerprint(&sandbox.Policy{Globals: []string{"a"}})
	b := PolicyFingerprint(&sandbox.Policy{Globals: []string{"b"}})
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, PolicyFingerprint(&sandbox.Policy{Globals: []string{"a"}}))
}

type countingTarget struct {
	reloads atomic.Int32
}

func (c *countingTarget) Reload(context.Context) error {
	c.reloads.Add(1)
	return nil
}

func TestReloaderDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.yaml")
	write(t, policy, "globals: []\n")

	target := &countingTarget{}
	r, err := NewReloader(target, nil, policy, "")
	require.NoError(t, err)
	r.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	// Unrelated files in the same directory are ignored
	write(t, filepath.Join(dir, "other.txt"), "x")
	for i := 0; i < 3; i++ {
		write(t, policy, "globals: [a]\n")
	}

	require.Eventually(t, func() bool { return target.reloads.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, target.reloads.Load())

	cancel()
	<-done
}

func TestReloaderNothingToWatch(t *testing.T) {
	_, err := NewReloader(&countingTarget{}, nil, "", "")
	assert.ErrorIs(t, err, ErrNothingToWatch)

	_, err = NewReloader(&countingTarget{}, nil, filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, ErrNothingToWatch)
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/server"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "run", "policy", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "", "--format", "xml", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "membrane "))
}

func TestPolicyCheckGolden(t *testing.T) {
	out, _, err := execute(t, "", "--format", "json", "policy", "check", "testdata/policy.yaml")
	require.NoError(t, err)

	policy, err := sandbox.LoadPolicy("testdata/policy.yaml")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.AssertWithTemplate(t, "policy_check", struct{ Fingerprint string }{server.PolicyFingerprint(policy)}, []byte(out))
}

func TestPolicyCheckText(t *testing.T) {
	out, _, err := execute(t, "", "policy", "check", "testdata/policy.toml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ testdata/policy.toml is valid (toml)")
	assert.Contains(t, out, "globals: api")
	assert.Contains(t, out, "distortions: 1")
}

func TestPolicyCheckInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "bad.yaml", "globals: [a]\nunknown: true\n")

	out, _, err := execute(t, "", "--format", "json", "policy", "check", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, sandbox.ErrInvalidPolicy)

	var resp Response
	require.NoError(t, sonic.UnmarshalString(out, &resp))
	assert.Equal(t, "error", resp.Status)
}

func TestRunScript(t *testing.T) {
	path := writeScript(t, t.TempDir(), "main.js", "console.log('hello'); [1, 2, 3].reduce((a, b) => a + b)")

	out, errOut, err := execute(t, "", "run", path)
	require.NoError(t, err)
	assert.Equal(t, "=> 6\n", out)
	assert.Contains(t, errOut, "[log] hello")
}

func TestRunScriptJSON(t *testing.T) {
	out, errOut, err := execute(t, "console.warn('w'); ({ n: 1 })", "--format", "json", "run", "-")
	require.NoError(t, err)
	assert.Empty(t, errOut)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, sonic.UnmarshalString(out, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data.ExecutionID)
	require.Len(t, resp.Data.Console, 1)
	assert.Equal(t, "warn", resp.Data.Console[0].Level)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, resp.Data.Value)
}

func TestRunScriptFailures(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "", "run", filepath.Join(dir, "missing.js"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "", "run", "-")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err := execute(t, "throw new Error('nope')", "run", "-")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "nope")

	out, _, err = execute(t, "while (true) {}", "--format", "json", "run", "--timeout", "50ms", "-")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, sandbox.ErrExecutionTimeout)
	assert.Contains(t, out, `"status": "error"`)
}

func TestRunWithDocumentAndPolicy(t *testing.T) {
	dir := t.TempDir()
	host := filepath.Join(dir, "host")
	require.NoError(t, os.Mkdir(host, 0o755))
	writeScript(t, host, "api.js", "var api = { greet(n) { return 'hi ' + n }, internal() { return 'secret' } }")
	policy := writeScript(t, dir, "policy.yaml", "globals: [api]\ndistortions:\n  - path: api.internal\n    action: undefined\n")
	page := writeScript(t, dir, "page.html", `<div><span id="who">ann</span></div>`)
	script := writeScript(t, dir, "main.js", `
		const el = document.getElementById('who');
		el.textContent = api.greet(el.textContent);
		el.textContent + '/' + api.internal()
	`)

	out, _, err := execute(t, "", "run", "--policy", policy, "--host-scripts", host, "--html", page, script)
	require.NoError(t, err)
	assert.Equal(t, "=> hi ann/undefined\n", out)
}

func TestApplyServeFlags(t *testing.T) {
	opts := &ServeOptions{RootOptions: &RootOptions{Verbose: true}}
	cmd := NewServeCommand(opts.RootOptions)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9999"}))

	cfg := config.Default()
	applyServeFlags(cmd, &ServeOptions{RootOptions: opts.RootOptions, Port: "9999"}, cfg)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", nil)))
}

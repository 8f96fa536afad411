package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadHostScripts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.js", "var b = 2")
	writeFile(t, root, "lib/a.js", "var a = 1")
	writeFile(t, root, "lib/notes.txt", "not a script")

	scripts, err := LoadHostScripts(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "b.js", scripts[0].Path)
	assert.Equal(t, "lib/a.js", scripts[1].Path)

	only, err := LoadHostScripts(context.Background(), root, "lib/*")
	require.NoError(t, err)
	assert.Len(t, only, 2)
}

func TestLoadHostScriptsErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.js", "caf\xe9")

	_, err := LoadHostScripts(context.Background(), root)
	assert.ErrorIs(t, err, utils.ErrInvalidScript)

	_, err = LoadHostScripts(context.Background(), root, "[")
	assert.Error(t, err)

	_, err = LoadHostScripts(context.Background(), filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestJoinedHostScriptsRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "01-base.js", "var base = { n: 1 }")
	writeFile(t, root, "02-api.js", "var api = { value() { return base.n + 1 } }")

	scripts, err := LoadHostScripts(context.Background(), root)
	require.NoError(t, err)

	config := DefaultConfig()
	config.HostScript = JoinHostScripts(scripts)
	config.Policy = &Policy{Globals: []string{"api"}}
	rt := newRuntime(t, config)

	assert.EqualValues(t, 2, execute(t, rt, "api.value()").Value)
	assert.Equal(t, "undefined", execute(t, rt, "typeof base").Value)
}

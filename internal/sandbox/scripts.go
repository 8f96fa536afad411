package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

// DefaultScriptPattern selects host scripts when no pattern is given
const DefaultScriptPattern = "**/*.js"

// HostScript is one trusted script file loaded from disk
type HostScript struct {
	Path   string // relative to the walked root, slash separated
	Source string
}

// LoadHostScripts walks root and returns every regular file whose relative
// path matches one of patterns, sorted by path. Each file must pass script
// validation.
func LoadHostScripts(ctx context.Context, root string, patterns ...string) ([]HostScript, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultScriptPattern}
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid script pattern %q", pattern)
		}
	}

	var (
		mu      sync.Mutex
		matches []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				mu.Lock()
				matches = append(matches, rel)
				mu.Unlock()
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(matches)

	scripts := make([]HostScript, 0, len(matches))
	for _, rel := range matches {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		if err := utils.ValidateScript(data, 0); err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		scripts = append(scripts, HostScript{Path: rel, Source: string(data)})
	}
	return scripts, nil
}

// JoinHostScripts concatenates scripts into one host script, each wrapped
// so a missing trailing semicolon cannot merge two files.
func JoinHostScripts(scripts []HostScript) string {
	var b strings.Builder
	for _, s := range scripts {
		fmt.Fprintf(&b, "// %s\n%s\n;\n", s.Path, s.Source)
	}
	return b.String()
}

package sandbox

import (
	"sync/atomic"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

// DefaultProgramCacheSize bounds a ProgramCache created with size <= 0
const DefaultProgramCacheSize = 256

// ProgramCache holds compiled guest scripts keyed by a hash of their source.
// Compiled programs carry no realm state, so one cache can serve every
// sandbox in a pool.
type ProgramCache struct {
	hasher   *utils.Hasher
	programs *lru.Cache[string, *goja.Program]
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// ProgramCacheStats describes cache effectiveness
type ProgramCacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// NewProgramCache creates a cache holding up to size programs
func NewProgramCache(size int) *ProgramCache {
	if size <= 0 {
		size = DefaultProgramCacheSize
	}
	programs, _ := lru.New[string, *goja.Program](size) // only fails for size <= 0
	return &ProgramCache{
		hasher:   utils.DefaultHasher(),
		programs: programs,
	}
}

// Compile returns the compiled form of script, compiling it on a miss.
// Compile errors are not cached.
func (c *ProgramCache) Compile(script string) (*goja.Program, error) {
	key := c.hasher.HashString(script)
	if program, ok := c.programs.Get(key); ok {
		c.hits.Add(1)
		return program, nil
	}
	c.misses.Add(1)

	program, err := goja.Compile("guest-"+utils.ShortHash(key)+".js", script, false)
	if err != nil {
		return nil, err
	}
	// A concurrent compile of the same source may have won; keep its program.
	if prev, found, _ := c.programs.PeekOrAdd(key, program); found {
		return prev, nil
	}
	return program, nil
}

// Stats returns cache statistics
func (c *ProgramCache) Stats() ProgramCacheStats {
	return ProgramCacheStats{
		Entries: c.programs.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

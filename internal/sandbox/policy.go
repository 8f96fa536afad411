package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/membrane/internal/membrane"
)

// ErrInvalidPolicy is returned for a policy that cannot be applied.
var ErrInvalidPolicy = errors.New("invalid sandbox policy")

// Action selects what a distorted host function does when the guest calls it.
type Action string

const (
	ActionBlock     Action = "block"     // throw a TypeError
	ActionUndefined Action = "undefined" // return undefined
)

// Distortion replaces the host function at Path, a dotted path from the
// host global object, for every wrapper created afterwards.
type Distortion struct {
	Path   string `json:"path" yaml:"path" toml:"path"`
	Action Action `json:"action" yaml:"action" toml:"action"`
}

// Policy decides which host globals cross into the guest and how.
//
//	globals: [api, document]
//	live: [api]
//	distortions:
//	  - path: api.internal
//	    action: block
type Policy struct {
	Globals     []string     `json:"globals" yaml:"globals" toml:"globals"`
	Live        []string     `json:"live" yaml:"live" toml:"live"`
	Distortions []Distortion `json:"distortions" yaml:"distortions" toml:"distortions"`
}

// LoadPolicy reads a policy file. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParsePolicyTOML(data)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy. Unknown keys are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParsePolicyTOML parses a TOML policy. Unknown keys are rejected.
//
//	globals = ["api"]
//
//	[[distortions]]
//	path = "api.internal"
//	action = "block"
func ParsePolicyTOML(data []byte) (*Policy, error) {
	var p Policy
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) validate() error {
	for i, d := range p.Distortions {
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("%w: distortion %d has no path", ErrInvalidPolicy, i)
		}
		switch d.Action {
		case ActionBlock, ActionUndefined:
		default:
			return fmt.Errorf("%w: distortion %s: unknown action %q", ErrInvalidPolicy, d.Path, d.Action)
		}
	}
	return nil
}

// names returns the globals to expose: the policy's list when it has one,
// every endowment otherwise.
func (p *Policy) names(endowments map[string]interface{}) []string {
	if p != nil && len(p.Globals) > 0 {
		return p.Globals
	}
	names := make([]string, 0, len(endowments))
	for name := range endowments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Policy) isLive(name string) bool {
	if p == nil {
		return false
	}
	for _, live := range p.Live {
		if live == name {
			return true
		}
	}
	return false
}

// distort registers every distortion with b. Targets are resolved in the
// host realm and must be functions. Paths under a linked intrinsic such as
// Date.now also replace the guest's own copy.
func (p *Policy) distort(b *membrane.Broker) error {
	if p == nil {
		return nil
	}
	host := b.Host()
	for _, d := range p.Distortions {
		target, err := resolve(host, d.Path)
		if err != nil {
			return err
		}
		if _, ok := goja.AssertFunction(target); !ok {
			return fmt.Errorf("%w: %s is not a function", ErrInvalidPolicy, d.Path)
		}
		replacement := d.replacement(host)
		if err := b.Distort(target, replacement); err != nil {
			return fmt.Errorf("distort %s: %w", d.Path, err)
		}
		if isLinked(rootOf(d.Path)) {
			if err := replaceIntrinsic(b, d.Path, replacement); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceIntrinsic installs replacement on the guest twin of a linked
// intrinsic. Guest code reaches those twins directly, never through a
// wrapper, so registering the distortion alone would not affect it.
func replaceIntrinsic(b *membrane.Broker, path string, replacement *goja.Object) error {
	guest := b.Guest()
	parent := guest.GlobalObject()
	name := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		p, err := resolve(guest, path[:i])
		if err != nil {
			return err
		}
		parent, name = p, path[i+1:]
	}
	gv, err := b.ToGuestValue(replacement)
	if err != nil {
		return fmt.Errorf("distort %s: %w", path, err)
	}
	if err := parent.DefineDataProperty(name, gv, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("%w: %s cannot be replaced: %v", ErrInvalidPolicy, path, err)
	}
	return nil
}

func rootOf(path string) string {
	root, _, _ := strings.Cut(path, ".")
	return root
}

func (d Distortion) replacement(vm *goja.Runtime) *goja.Object {
	path := d.Path
	var fn func(goja.FunctionCall) goja.Value
	switch d.Action {
	case ActionBlock:
		fn = func(goja.FunctionCall) goja.Value {
			panic(vm.NewTypeError("%s is blocked by policy", path))
		}
	default:
		fn = func(goja.FunctionCall) goja.Value {
			return goja.Undefined()
		}
	}
	return vm.ToValue(fn).(*goja.Object)
}

func resolve(vm *goja.Runtime, path string) (*goja.Object, error) {
	cur := vm.GlobalObject()
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Get(part).(*goja.Object)
		if !ok || next == nil {
			return nil, fmt.Errorf("%w: %s does not resolve to an object", ErrInvalidPolicy, path)
		}
		cur = next
	}
	return cur, nil
}

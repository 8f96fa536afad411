package membrane

import (
	"errors"

	"github.com/dop251/goja"
)

var (
	errNotCallable    = errors.New("value is not a function")
	errNotConstructor = errors.New("value is not a constructor")
)

// Hooks is the marshaling contract a realm supplies for calling its own
// values. The membrane never invokes a foreign function any other way, so a
// platform that must refuse calls from a torn-down context can do it here.
type Hooks interface {
	Invoke(fn *goja.Object, this goja.Value, args []goja.Value) (goja.Value, error)
	Construct(ctor *goja.Object, args []goja.Value, newTarget *goja.Object) (*goja.Object, error)
}

// DefaultHooks calls through goja's own function and constructor adapters,
// which report thrown exceptions as *goja.Exception errors.
type DefaultHooks struct{}

// Invoke calls fn with the given receiver and arguments.
func (DefaultHooks) Invoke(fn *goja.Object, this goja.Value, args []goja.Value) (goja.Value, error) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, errNotCallable
	}
	return call(this, args...)
}

// Construct instantiates ctor as if by new, with newTarget as new.target.
func (DefaultHooks) Construct(ctor *goja.Object, args []goja.Value, newTarget *goja.Object) (*goja.Object, error) {
	construct, ok := goja.AssertConstructor(ctor)
	if !ok {
		return nil, errNotConstructor
	}
	return construct(newTarget, args...)
}

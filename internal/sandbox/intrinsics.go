package sandbox

import (
	"fmt"
	"slices"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/membrane/internal/membrane"
)

// Constructors whose function and prototype objects are shared by identity
// between the realms. Errors thrown across keep their class and values
// inheriting from these prototypes are never wrapped twice.
var linkedConstructors = []string{
	"Object", "Function", "Array", "Boolean", "Number", "String", "Symbol",
	"Error", "EvalError", "RangeError", "ReferenceError", "SyntaxError", "TypeError", "URIError",
	"Date", "RegExp", "Promise",
	"Map", "Set", "WeakMap", "WeakSet",
	"ArrayBuffer", "DataView",
}

var linkedNamespaces = []string{"Math", "JSON", "Reflect"}

// linkIntrinsics binds each host intrinsic to its guest twin. It must run
// before any guest code.
func linkIntrinsics(b *membrane.Broker) error {
	host, guest := b.Host(), b.Guest()

	link := func(name string, h, g *goja.Object) error {
		if h == nil || g == nil {
			return nil
		}
		if err := b.SetIdentity(g, h); err != nil {
			return fmt.Errorf("link %s: %w", name, err)
		}
		return nil
	}

	for _, name := range linkedNamespaces {
		if err := link(name, objectOf(host.Get(name)), objectOf(guest.Get(name))); err != nil {
			return err
		}
	}
	for _, name := range linkedConstructors {
		h, g := objectOf(host.Get(name)), objectOf(guest.Get(name))
		if h == nil || g == nil {
			continue
		}
		if err := link(name, h, g); err != nil {
			return err
		}
		if err := link(name+".prototype", objectOf(h.Get("prototype")), objectOf(g.Get("prototype"))); err != nil {
			return err
		}
	}
	return nil
}

// isLinked reports whether name is a global whose guest twin is linked to
// the host one.
func isLinked(name string) bool {
	return slices.Contains(linkedNamespaces, name) || slices.Contains(linkedConstructors, name)
}

func objectOf(v goja.Value) *goja.Object {
	obj, _ := v.(*goja.Object)
	return obj
}

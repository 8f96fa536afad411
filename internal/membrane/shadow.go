package membrane

import (
	"github.com/dop251/goja"
)

// newShadow builds the empty to-realm placeholder a wrapper proxies. Its
// callability decides whether the wrapper can be called or constructed, so
// it mirrors the target's shape.
func (s *side) newShadow(target *goja.Object) *goja.Object {
	vm := s.to.vm

	var shadow *goja.Object
	if _, callable := goja.AssertFunction(target); callable {
		if isConstructor(target) {
			shadow = asObject(vm.ToValue(func(goja.ConstructorCall) *goja.Object { return nil }))
		} else {
			shadow = asObject(vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() }))
		}
		s.copyName(target, shadow)
	} else {
		shadow = vm.NewObject()
	}
	_ = shadow.SetPrototype(nil)
	return shadow
}

// isConstructor falls back to the constructor shape, which can also be
// called, when the check itself blows up.
func isConstructor(target *goja.Object) (ctor bool) {
	defer func() {
		if recover() != nil {
			ctor = true
		}
	}()
	_, ctor = goja.AssertConstructor(target)
	return ctor
}

// copyName is best effort; a target that cannot report its name is most
// likely unusable anyway.
func (s *side) copyName(target, shadow *goja.Object) {
	name := ""
	if v, err := s.from.get(goja.Undefined(), target, s.from.key("name")); err == nil {
		if str, ok := v.Export().(string); ok {
			name = str
		}
	}
	_ = catch(func() {
		_ = shadow.DefineDataProperty("name", s.to.vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	})
}

package membrane

import (
	"github.com/dop251/goja"
)

// wrapperHandler is the fixed capability set every wrapper strategy
// implements. Keys arrive as to-realm strings or symbols.
type wrapperHandler interface {
	bind(self *goja.Object)

	getPrototypeOf(shadow *goja.Object) *goja.Object
	setPrototypeOf(shadow, proto *goja.Object) bool
	isExtensible(shadow *goja.Object) bool
	preventExtensions(shadow *goja.Object) bool
	getOwnPropertyDescriptor(shadow *goja.Object, key goja.Value) goja.PropertyDescriptor
	defineProperty(shadow *goja.Object, key goja.Value, pd goja.PropertyDescriptor) bool
	has(shadow *goja.Object, key goja.Value) bool
	get(shadow *goja.Object, key, receiver goja.Value) goja.Value
	set(shadow *goja.Object, key, value, receiver goja.Value) bool
	deleteProperty(shadow *goja.Object, key goja.Value) bool
	ownKeys(shadow *goja.Object) *goja.Object
	apply(shadow *goja.Object, this goja.Value, args []goja.Value) goja.Value
	construct(shadow *goja.Object, args []goja.Value, newTarget *goja.Object) *goja.Object
}

// trapConfig adapts h to goja's native proxy traps. Symbol traps must be
// set explicitly, otherwise goja would bypass the handler for them.
func trapConfig(r *realm, h wrapperHandler) *goja.ProxyTrapConfig {
	return &goja.ProxyTrapConfig{
		GetPrototypeOf:    h.getPrototypeOf,
		SetPrototypeOf:    h.setPrototypeOf,
		IsExtensible:      h.isExtensible,
		PreventExtensions: h.preventExtensions,

		GetOwnPropertyDescriptor: func(t *goja.Object, prop string) goja.PropertyDescriptor {
			return h.getOwnPropertyDescriptor(t, r.key(prop))
		},
		GetOwnPropertyDescriptorSym: func(t *goja.Object, prop *goja.Symbol) goja.PropertyDescriptor {
			return h.getOwnPropertyDescriptor(t, prop)
		},

		DefineProperty: func(t *goja.Object, key string, pd goja.PropertyDescriptor) bool {
			return h.defineProperty(t, r.key(key), pd)
		},
		DefinePropertySym: func(t *goja.Object, key *goja.Symbol, pd goja.PropertyDescriptor) bool {
			return h.defineProperty(t, key, pd)
		},

		Has: func(t *goja.Object, prop string) bool {
			return h.has(t, r.key(prop))
		},
		HasSym: func(t *goja.Object, prop *goja.Symbol) bool {
			return h.has(t, prop)
		},

		Get: func(t *goja.Object, prop string, receiver goja.Value) goja.Value {
			return h.get(t, r.key(prop), receiver)
		},
		GetSym: func(t *goja.Object, prop *goja.Symbol, receiver goja.Value) goja.Value {
			return h.get(t, prop, receiver)
		},

		Set: func(t *goja.Object, prop string, value, receiver goja.Value) bool {
			return h.set(t, r.key(prop), value, receiver)
		},
		SetSym: func(t *goja.Object, prop *goja.Symbol, value, receiver goja.Value) bool {
			return h.set(t, prop, value, receiver)
		},

		DeleteProperty: func(t *goja.Object, prop string) bool {
			return h.deleteProperty(t, r.key(prop))
		},
		DeletePropertySym: func(t *goja.Object, prop *goja.Symbol) bool {
			return h.deleteProperty(t, prop)
		},

		OwnKeys:   h.ownKeys,
		Apply:     h.apply,
		Construct: h.construct,
	}
}

// baseHandler holds what both strategies share, including call and
// construct routing, which always reaches the real target.
type baseHandler struct {
	s      *side
	target *goja.Object // distortion applied
	shadow *goja.Object
	self   *goja.Object
}

func (h *baseHandler) bind(self *goja.Object) {
	h.self = self
}

// back converts a to-realm value for use against the target. The wrapper
// itself maps to the target so that distortions hold for receivers too.
func (h *baseHandler) back(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	if obj := asObject(v); obj != nil && obj == h.self {
		return h.target
	}
	return h.s.peer.convert(v)
}

func (h *baseHandler) apply(_ *goja.Object, this goja.Value, args []goja.Value) goja.Value {
	res, err := h.s.from.hooks.Invoke(h.target, h.back(this), h.s.peer.convertAll(args))
	return h.s.cross(res, err)
}

func (h *baseHandler) construct(_ *goja.Object, args []goja.Value, newTarget *goja.Object) *goja.Object {
	var nt *goja.Object
	if newTarget == nil || newTarget == h.self {
		nt = h.target
	} else {
		nt = asObject(h.s.peer.convert(newTarget))
	}
	res, err := h.s.from.hooks.Construct(h.target, h.s.peer.convertAll(args), nt)
	if err != nil {
		h.s.throw(err)
	}
	obj := asObject(h.s.convert(res))
	if obj == nil {
		panic(h.s.to.vm.NewTypeError("constructor did not return an object"))
	}
	return obj
}

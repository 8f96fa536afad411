package membrane

import (
	"github.com/dop251/goja"
)

// staticHandler presents the snapshot taken when the wrapper was minted.
// After initialization everything but call and construct runs against the
// shadow, so later host mutations are invisible and guest writes stay local.
type staticHandler struct {
	baseHandler
	meta        targetMeta
	initialized bool
}

func newStaticHandler(s *side, target, shadow *goja.Object, meta targetMeta) *staticHandler {
	return &staticHandler{
		baseHandler: baseHandler{s: s, target: target, shadow: shadow},
		meta:        meta,
	}
}

// init runs once. The state flips first so re-entrant traps triggered by
// conversions below do not start it again.
func (h *staticHandler) init() {
	if h.initialized {
		return
	}
	h.initialized = true
	meta := h.meta
	h.meta = targetMeta{}

	to := h.s.to
	if meta.proto != nil {
		proto := asObject(h.s.convert(meta.proto))
		to.must(to.setPrototypeOf(goja.Undefined(), h.shadow, orNull(proto)))
	}
	for _, attr := range meta.attributes {
		h.install(attr.key, attr.desc.mapValues(h.s.convert))
	}

	switch meta.lifecycle {
	case frozen:
		to.must(to.freeze(goja.Undefined(), h.shadow))
	case sealed:
		to.must(to.seal(goja.Undefined(), h.shadow))
	case nonExtensible:
		to.must(to.preventExtensions(goja.Undefined(), h.shadow))
	}
}

// install copies d onto the shadow without disturbing slots the shadow
// already holds as non-configurable: those only take the value, and only
// when writable.
func (h *staticHandler) install(key goja.Value, d descriptor) {
	to := h.s.to
	existing, ok, err := to.ownDescriptor(h.shadow, key)
	if err != nil {
		return
	}
	switch {
	case !ok || existing.isConfigurable():
		_, _ = to.define(h.shadow, key, d)
	case existing.isWritable() && d.hasValue:
		_, _ = to.define(h.shadow, key, descriptor{value: d.value, hasValue: true})
	}
}

func (h *staticHandler) getPrototypeOf(shadow *goja.Object) *goja.Object {
	h.init()
	return asObject(h.s.to.must(h.s.to.getPrototypeOf(goja.Undefined(), shadow)))
}

func (h *staticHandler) setPrototypeOf(shadow, proto *goja.Object) bool {
	h.init()
	return h.s.to.must(h.s.to.setPrototypeOf(goja.Undefined(), shadow, orNull(proto))).ToBoolean()
}

func (h *staticHandler) isExtensible(shadow *goja.Object) bool {
	h.init()
	return h.s.to.must(h.s.to.isExtensibleFn(goja.Undefined(), shadow)).ToBoolean()
}

func (h *staticHandler) preventExtensions(shadow *goja.Object) bool {
	h.init()
	return h.s.to.must(h.s.to.preventExtensions(goja.Undefined(), shadow)).ToBoolean()
}

func (h *staticHandler) getOwnPropertyDescriptor(shadow *goja.Object, key goja.Value) goja.PropertyDescriptor {
	h.init()
	d, ok, err := h.s.to.ownDescriptor(shadow, key)
	if err != nil {
		panic(h.s.to.rethrow(err))
	}
	if !ok {
		return goja.PropertyDescriptor{}
	}
	return d.property()
}

func (h *staticHandler) defineProperty(shadow *goja.Object, key goja.Value, pd goja.PropertyDescriptor) bool {
	h.init()
	ok, err := h.s.to.define(shadow, key, fromProperty(pd))
	if err != nil {
		panic(h.s.to.rethrow(err))
	}
	return ok
}

func (h *staticHandler) has(shadow *goja.Object, key goja.Value) bool {
	h.init()
	return h.s.to.must(h.s.to.has(goja.Undefined(), shadow, key)).ToBoolean()
}

func (h *staticHandler) get(shadow *goja.Object, key, receiver goja.Value) goja.Value {
	h.init()
	return h.s.to.must(h.s.to.get(goja.Undefined(), shadow, key, orSelf(receiver, h.self)))
}

func (h *staticHandler) set(shadow *goja.Object, key, value, receiver goja.Value) bool {
	h.init()
	return h.s.to.must(h.s.to.set(goja.Undefined(), shadow, key, value, orSelf(receiver, h.self))).ToBoolean()
}

func (h *staticHandler) deleteProperty(shadow *goja.Object, key goja.Value) bool {
	h.init()
	return h.s.to.must(h.s.to.deleteProperty(goja.Undefined(), shadow, key)).ToBoolean()
}

func (h *staticHandler) ownKeys(shadow *goja.Object) *goja.Object {
	h.init()
	return asObject(h.s.to.must(h.s.to.ownKeysFn(goja.Undefined(), shadow)))
}

func orSelf(receiver goja.Value, self *goja.Object) goja.Value {
	if receiver == nil {
		return self
	}
	return receiver
}

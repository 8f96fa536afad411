package membrane

import (
	"github.com/dop251/goja"
)

// dynamicHandler forwards every operation to the live target. The shadow
// only accumulates what proxy invariants force it to hold: attributes seen
// as non-configurable and, once the target stops being extensible, the
// target's whole shape.
type dynamicHandler struct {
	baseHandler
}

func newDynamicHandler(s *side, target, shadow *goja.Object) *dynamicHandler {
	return &dynamicHandler{baseHandler: baseHandler{s: s, target: target, shadow: shadow}}
}

func (h *dynamicHandler) fail(err error) {
	h.s.throw(err)
}

func (h *dynamicHandler) getPrototypeOf(*goja.Object) *goja.Object {
	proto, err := h.s.from.prototypeOf(h.target)
	if err != nil {
		h.fail(err)
	}
	if proto == nil {
		return nil
	}
	return asObject(h.s.convert(proto))
}

func (h *dynamicHandler) setPrototypeOf(_ *goja.Object, proto *goja.Object) bool {
	var hostProto goja.Value = goja.Null()
	if proto != nil {
		hostProto = h.back(proto)
	}
	res, err := h.s.from.setPrototypeOf(goja.Undefined(), h.target, hostProto)
	if err != nil {
		h.fail(err)
	}
	return res.ToBoolean()
}

func (h *dynamicHandler) isExtensible(shadow *goja.Object) bool {
	if open, err := h.s.to.isExtensible(shadow); err == nil && !open {
		return false
	}
	ext, err := h.s.from.isExtensible(h.target)
	if err != nil {
		h.fail(err)
	}
	if !ext {
		h.lockDown()
		return false
	}
	return true
}

func (h *dynamicHandler) preventExtensions(*goja.Object) bool {
	res, err := h.s.from.preventExtensions(goja.Undefined(), h.target)
	if err != nil {
		h.fail(err)
	}
	ext, err := h.s.from.isExtensible(h.target)
	if err != nil {
		h.fail(err)
	}
	if !ext {
		h.lockDown()
	}
	return res.ToBoolean()
}

func (h *dynamicHandler) getOwnPropertyDescriptor(shadow *goja.Object, key goja.Value) goja.PropertyDescriptor {
	if isLiveMarker(key) {
		return goja.PropertyDescriptor{}
	}
	d, ok, err := h.s.from.ownDescriptor(h.target, key)
	if err != nil {
		h.fail(err)
	}
	if !ok {
		// A constructor-shaped shadow owns a prototype slot the target may lack.
		if cur, found := h.fixed(shadow, key); found {
			return cur.property()
		}
		return goja.PropertyDescriptor{}
	}
	if d.isConfigurable() {
		return d.mapValues(h.s.convert).property()
	}
	return h.pin(key, d).property()
}

// pin records a non-configurable target attribute on the shadow and
// returns what the shadow now holds, so consecutive answers stay consistent
// with the invariants goja checks against the shadow.
func (h *dynamicHandler) pin(key goja.Value, d descriptor) descriptor {
	to := h.s.to
	if cur, ok, err := to.ownDescriptor(h.shadow, key); err == nil && ok && !cur.isConfigurable() && !cur.isAccessor() && !cur.isWritable() {
		return cur
	}
	_, _ = to.define(h.shadow, key, d.mapValues(h.s.convert))
	cur, ok, err := to.ownDescriptor(h.shadow, key)
	if err != nil || !ok {
		return d.mapValues(h.s.convert)
	}
	return cur
}

func (h *dynamicHandler) defineProperty(_ *goja.Object, key goja.Value, pd goja.PropertyDescriptor) bool {
	candidate := fromProperty(pd).mapValues(h.back)
	if _, err := h.s.from.define(h.target, key, candidate); err != nil {
		h.fail(err)
	}
	if d, ok, err := h.s.from.ownDescriptor(h.target, key); err == nil && ok && !d.isConfigurable() {
		h.pin(key, d)
	}
	return true
}

func (h *dynamicHandler) has(shadow *goja.Object, key goja.Value) bool {
	res, err := h.s.from.has(goja.Undefined(), h.target, key)
	if err != nil {
		h.fail(err)
	}
	if res.ToBoolean() {
		return true
	}
	_, found := h.fixed(shadow, key)
	return found
}

// fixed returns the shadow's own attribute for key when it is
// non-configurable; goja will not let the wrapper deny such a slot.
func (h *dynamicHandler) fixed(shadow *goja.Object, key goja.Value) (descriptor, bool) {
	cur, ok, err := h.s.to.ownDescriptor(shadow, key)
	if err != nil || !ok || cur.isConfigurable() {
		return descriptor{}, false
	}
	return cur, true
}

func (h *dynamicHandler) get(shadow *goja.Object, key, receiver goja.Value) goja.Value {
	// A pinned read-only value must be returned as pinned; arrays would
	// otherwise come back as a fresh copy and break the get invariant.
	if cur, ok, err := h.s.to.ownDescriptor(shadow, key); err == nil && ok && !cur.isConfigurable() && !cur.isAccessor() && !cur.isWritable() {
		return orUndefined(cur.value)
	}
	res, err := h.s.from.get(goja.Undefined(), h.target, key, h.back(orSelf(receiver, h.self)))
	return h.s.cross(res, err)
}

func (h *dynamicHandler) set(_ *goja.Object, key, value, receiver goja.Value) bool {
	res, err := h.s.from.set(goja.Undefined(), h.target, key, h.back(value), h.back(orSelf(receiver, h.self)))
	if err != nil {
		h.fail(err)
	}
	return res.ToBoolean()
}

func (h *dynamicHandler) deleteProperty(shadow *goja.Object, key goja.Value) bool {
	res, err := h.s.from.deleteProperty(goja.Undefined(), h.target, key)
	if err != nil {
		h.fail(err)
	}
	if _, found := h.fixed(shadow, key); found {
		return false
	}
	return res.ToBoolean()
}

func (h *dynamicHandler) ownKeys(shadow *goja.Object) *goja.Object {
	keys, err := h.s.from.ownKeys(h.target)
	if err != nil {
		h.fail(err)
	}
	seen := make(map[interface{}]struct{}, len(keys))
	items := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		if isLiveMarker(k) {
			continue
		}
		seen[keyID(k)] = struct{}{}
		items = append(items, k)
	}
	// goja rejects a key list that omits a non-configurable shadow attribute.
	if shadowKeys, err := h.s.to.ownKeys(shadow); err == nil {
		for _, k := range shadowKeys {
			if _, ok := seen[keyID(k)]; ok {
				continue
			}
			if d, ok, err := h.s.to.ownDescriptor(shadow, k); err == nil && ok && !d.isConfigurable() {
				items = append(items, k)
			}
		}
	}
	return h.s.to.vm.NewArray(items...)
}

// lockDown makes the shadow match a target that stopped being extensible:
// same attributes, same prototype, no further growth.
func (h *dynamicHandler) lockDown() {
	from, to := h.s.from, h.s.to

	keys, err := from.ownKeys(h.target)
	if err != nil {
		h.fail(err)
	}
	present := make(map[interface{}]struct{}, len(keys))
	for _, key := range keys {
		if isLiveMarker(key) {
			continue
		}
		present[keyID(key)] = struct{}{}
		d, ok, err := from.ownDescriptor(h.target, key)
		if err != nil {
			h.fail(err)
		}
		if ok {
			_, _ = to.define(h.shadow, key, d.mapValues(h.s.convert))
		}
	}

	if shadowKeys, err := to.ownKeys(h.shadow); err == nil {
		for _, key := range shadowKeys {
			if _, ok := present[keyID(key)]; !ok {
				_, _ = to.deleteProperty(goja.Undefined(), h.shadow, key)
			}
		}
	}

	proto, err := from.prototypeOf(h.target)
	if err != nil {
		h.fail(err)
	}
	var guestProto goja.Value = goja.Null()
	if proto != nil {
		guestProto = h.s.convert(proto)
	}
	to.must(to.setPrototypeOf(goja.Undefined(), h.shadow, guestProto))
	to.must(to.preventExtensions(goja.Undefined(), h.shadow))
}

// keyID gives string and symbol keys a comparable identity.
func keyID(k goja.Value) interface{} {
	if sym, ok := k.(*goja.Symbol); ok {
		return sym
	}
	return k.String()
}

// isLiveMarker reports whether key is the host-side live marker, which is
// never shown to the other realm.
func isLiveMarker(key goja.Value) bool {
	sym, ok := key.(*goja.Symbol)
	return ok && sym.SameAs(LiveMarker)
}

package membrane

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// side is one direction of the membrane: objects owned by from are
// presented inside to. The broker keeps two of them, each the other's peer.
type side struct {
	b       *Broker
	from    *realm
	to      *realm
	peer    *side
	reverse bool // true when from is the guest realm
}

func (s *side) lookup(obj *goja.Object) *goja.Object {
	if s.reverse {
		return s.b.identity.hostFor(obj)
	}
	return s.b.identity.guestFor(obj)
}

func (s *side) register(wrapper, target *goja.Object) error {
	if s.reverse {
		return s.b.identity.bind(target, wrapper)
	}
	return s.b.identity.bind(wrapper, target)
}

// convert maps a from-realm value into the to realm. It panics with a
// to-realm throwable on failure, which is what traps need.
func (s *side) convert(v goja.Value) goja.Value {
	obj := asObject(v)
	if obj == nil {
		return v
	}
	if w := s.lookup(obj); w != nil {
		return w
	}
	if s.from.isArray(obj) {
		return s.copyArray(obj)
	}
	return s.wrap(obj)
}

func (s *side) convertAll(vs []goja.Value) []goja.Value {
	out := make([]goja.Value, len(vs))
	for i, v := range vs {
		out[i] = s.convert(v)
	}
	return out
}

func (s *side) convertSafe(v goja.Value) (res goja.Value, err error) {
	err = catch(func() {
		res = s.convert(v)
	})
	return res, err
}

// copyArray builds a fresh to-realm array; arrays never keep identity.
func (s *side) copyArray(arr *goja.Object) goja.Value {
	n, err := s.from.get(goja.Undefined(), arr, s.from.key("length"))
	if err != nil {
		s.throw(err)
	}
	length := int(n.ToInteger())
	items := make([]interface{}, length)
	for i := 0; i < length; i++ {
		item, err := s.from.get(goja.Undefined(), arr, s.from.idxKey(i))
		if err != nil {
			s.throw(err)
		}
		items[i] = s.convert(item)
	}
	return s.to.vm.NewArray(items...)
}

// wrap mints the wrapper for original. The wrapper is registered before
// anything is converted on its behalf, so cycles resolve to it.
func (s *side) wrap(original *goja.Object) goja.Value {
	target := original
	if !s.reverse {
		if replacement := s.b.distortion(original); replacement != nil {
			target = replacement
		}
	}

	meta := s.targetMeta(target)
	shadow := s.newShadow(target)

	var (
		h    wrapperHandler
		kind string
	)
	switch {
	case s.reverse:
		h, kind = newDynamicHandler(s, target, shadow), kindReverse
	case s.isLive(target):
		h, kind = newDynamicHandler(s, target, shadow), kindDynamic
	default:
		h, kind = newStaticHandler(s, target, shadow, meta), kindStatic
	}

	proxy := s.to.vm.NewProxy(shadow, trapConfig(s.to, h))
	wrapper := asObject(s.to.vm.ToValue(proxy))
	h.bind(wrapper)

	if err := s.register(wrapper, original); err != nil {
		proxy.Revoke()
		s.b.logger.Error("wrapper registration failed", zap.String("realm", s.to.name), zap.Error(err))
		panic(s.to.newError(internalErrorMessage))
	}

	if meta.broken {
		proxy.Revoke()
		kind = kindRevoked
		s.b.logger.Warn("target not introspectable, wrapper revoked", zap.String("realm", s.to.name))
	}
	s.b.metrics.RecordWrapper(kind)
	s.b.logger.Debug("wrapper created", zap.String("realm", s.to.name), zap.String("kind", kind))
	return wrapper
}

// isLive reports whether target carries the live marker as an own attribute.
func (s *side) isLive(target *goja.Object) bool {
	_, ok, err := s.from.ownDescriptor(target, LiveMarker)
	return err == nil && ok
}

const (
	kindStatic  = "static"
	kindDynamic = "dynamic"
	kindReverse = "reverse"
	kindRevoked = "revoked"
)

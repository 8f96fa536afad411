package membrane

import (
	"errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// cross finishes a call into the from realm: the result is converted, a
// failure is normalized and thrown in the to realm.
func (s *side) cross(res goja.Value, err error) goja.Value {
	if err != nil {
		s.throw(err)
	}
	return s.convert(res)
}

// throw raises a from-realm failure in the to realm. An interrupt is
// re-raised as it is: goja keeps it uncatchable, so guest code cannot
// swallow a timeout that fired while a host call was running.
func (s *side) throw(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		panic(interrupted)
	}
	panic(s.normalize(err))
}

// normalize turns a from-realm failure into a fresh to-realm error object.
// Only the message survives; the original error object, its stack and any
// linked data stay behind. A thrown primitive becomes a plain Error whose
// message is its string form.
func (s *side) normalize(err error) goja.Value {
	s.b.metrics.RecordBoundaryFailure()

	var exc *goja.Exception
	if !errors.As(err, &exc) {
		s.b.logger.Debug("foreign failure normalized", zap.String("realm", s.to.name), zap.String("class", "go"))
		return s.to.newError(err.Error())
	}

	thrown := exc.Value()
	obj := asObject(thrown)
	if obj == nil {
		s.b.logger.Debug("foreign failure normalized", zap.String("realm", s.to.name), zap.String("class", "primitive"))
		return s.to.newError(primitiveMessage(thrown))
	}

	var (
		msg  string
		ctor *goja.Object
	)
	if v, err := s.from.get(goja.Undefined(), obj, s.from.key("message")); err == nil {
		msg = s.from.stringOf(v)
	}
	if v, err := s.from.get(goja.Undefined(), obj, s.from.key("constructor")); err == nil {
		ctor = asObject(v)
	}

	if ctor != nil {
		if counterpart := s.lookup(ctor); counterpart != nil {
			if e, err := s.to.vm.New(counterpart, s.to.vm.ToValue(msg)); err == nil {
				s.b.logger.Debug("foreign failure normalized", zap.String("realm", s.to.name), zap.String("class", "mapped"))
				return e
			}
		}
	}
	s.b.logger.Debug("foreign failure normalized", zap.String("realm", s.to.name), zap.String("class", "generic"))
	return s.to.newError(msg)
}

func primitiveMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

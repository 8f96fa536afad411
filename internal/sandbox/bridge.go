package sandbox

import (
	"context"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// bridgeObject builds the host-realm "bridge" global. Guest calls reach the
// configured Bridge through the circuit breaker so that a failing host
// service stops being hammered by guest loops. Arguments are exported
// through the membrane, so guest objects arrive with their content.
func (r *Runtime) bridgeObject() *goja.Object {
	vm := r.host
	bridge := vm.NewObject()

	_ = bridge.Set("call", func(call goja.FunctionCall) goja.Value {
		method := call.Argument(0).String()
		args := make([]interface{}, 0, len(call.Arguments))
		for _, arg := range call.Arguments[min(1, len(call.Arguments)):] {
			v, err := export(r.broker, arg)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			args = append(args, v)
		}

		var res interface{}
		err := r.breaker.Do(r.execCtx, func(ctx context.Context) (err error) {
			res, err = r.config.Bridge.Call(ctx, method, args...)
			return err
		})
		if err != nil {
			r.logger.Debug("bridge call failed", zap.String("method", method), zap.Error(err))
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(res)
	})

	_ = bridge.Set("emit", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		data, err := export(r.broker, call.Argument(1))
		if err != nil {
			panic(vm.NewGoError(err))
		}

		err = r.breaker.Do(r.execCtx, func(ctx context.Context) error {
			return r.config.Bridge.Emit(ctx, event, data)
		})
		if err != nil {
			r.logger.Debug("bridge emit failed", zap.String("event", event), zap.Error(err))
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})

	return bridge
}

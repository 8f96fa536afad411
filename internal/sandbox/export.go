package sandbox

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/membrane/internal/membrane"
)

// maxExportDepth bounds how deep a value graph is copied into Go
const maxExportDepth = 64

var (
	typeMap   = reflect.TypeOf(map[string]interface{}{})
	typeSlice = reflect.TypeOf([]interface{}{})
	typeProxy = reflect.TypeOf(goja.Proxy{})
)

// exporter copies a value graph out of the realms into plain Go values.
// Wrappers are followed to the object they stand for, so a guest object
// handed to the host exports with its content rather than as an opaque
// proxy. Functions export as nil and cycles are cut.
type exporter struct {
	broker *membrane.Broker
	active map[*goja.Object]struct{}
}

// export converts v to a Go value. A trap or getter that throws while the
// graph is read turns into an error.
func export(b *membrane.Broker, v goja.Value) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("export: %w", e)
				return
			}
			err = fmt.Errorf("export: %v", r)
		}
	}()
	e := &exporter{broker: b, active: make(map[*goja.Object]struct{})}
	return e.value(v, 0), nil
}

func (e *exporter) value(v goja.Value, depth int) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	obj = e.broker.Unwrap(obj)
	if _, callable := goja.AssertFunction(obj); callable {
		return nil
	}
	if depth >= maxExportDepth {
		return nil
	}
	if _, ok := e.active[obj]; ok {
		return nil
	}
	e.active[obj] = struct{}{}
	defer delete(e.active, obj)

	switch obj.ExportType() {
	case typeSlice:
		n := int(obj.Get("length").ToInteger())
		out := make([]interface{}, n)
		for i := range out {
			out[i] = e.value(obj.Get(strconv.Itoa(i)), depth+1)
		}
		return out
	case typeMap, typeProxy:
		keys := obj.Keys()
		out := make(map[string]interface{}, len(keys))
		for _, key := range keys {
			out[key] = e.value(obj.Get(key), depth+1)
		}
		return out
	default:
		return obj.Export()
	}
}

package membrane

import (
	"github.com/dop251/goja"
)

// descriptor is a realm-neutral attribute descriptor. The embedded values
// belong to whichever realm produced them until mapped across.
type descriptor struct {
	value, getter, setter              goja.Value
	hasValue, hasGetter, hasSetter     bool
	writable, enumerable, configurable goja.Flag
}

func (d descriptor) isAccessor() bool {
	return d.hasGetter || d.hasSetter
}

func (d descriptor) isConfigurable() bool {
	return d.configurable == goja.FLAG_TRUE
}

func (d descriptor) isWritable() bool {
	return d.writable == goja.FLAG_TRUE
}

// readDescriptor parses a descriptor object produced by
// Reflect.getOwnPropertyDescriptor. It may panic with a goja exception.
func readDescriptor(obj *goja.Object) descriptor {
	var d descriptor
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		switch k {
		case "value":
			d.value, d.hasValue = v, true
		case "get":
			d.getter, d.hasGetter = v, true
		case "set":
			d.setter, d.hasSetter = v, true
		case "writable":
			d.writable = flagOf(v.ToBoolean())
		case "enumerable":
			d.enumerable = flagOf(v.ToBoolean())
		case "configurable":
			d.configurable = flagOf(v.ToBoolean())
		}
	}
	return d
}

// fromProperty converts the descriptor goja hands to a defineProperty trap.
func fromProperty(pd goja.PropertyDescriptor) descriptor {
	return descriptor{
		value:        pd.Value,
		getter:       pd.Getter,
		setter:       pd.Setter,
		hasValue:     pd.Value != nil,
		hasGetter:    pd.Getter != nil,
		hasSetter:    pd.Setter != nil,
		writable:     pd.Writable,
		enumerable:   pd.Enumerable,
		configurable: pd.Configurable,
	}
}

// property converts d into the form a getOwnPropertyDescriptor trap returns.
func (d descriptor) property() goja.PropertyDescriptor {
	pd := goja.PropertyDescriptor{
		Enumerable:   d.enumerable,
		Configurable: d.configurable,
	}
	if d.isAccessor() {
		pd.Getter = orUndefined(d.getter)
		pd.Setter = orUndefined(d.setter)
		return pd
	}
	pd.Value = orUndefined(d.value)
	pd.Writable = d.writable
	return pd
}

// object materializes d as a null-prototype descriptor object in vm so that
// inherited accessors cannot interfere with ToPropertyDescriptor.
func (d descriptor) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.SetPrototype(nil)
	if d.hasValue {
		_ = obj.Set("value", orUndefined(d.value))
	}
	if d.hasGetter {
		_ = obj.Set("get", orUndefined(d.getter))
	}
	if d.hasSetter {
		_ = obj.Set("set", orUndefined(d.setter))
	}
	setFlag(obj, "writable", d.writable)
	setFlag(obj, "enumerable", d.enumerable)
	setFlag(obj, "configurable", d.configurable)
	return obj
}

// mapValues returns d with its value and accessors passed through f.
func (d descriptor) mapValues(f func(goja.Value) goja.Value) descriptor {
	if d.hasValue {
		d.value = f(d.value)
	}
	if d.hasGetter {
		d.getter = f(d.getter)
	}
	if d.hasSetter {
		d.setter = f(d.setter)
	}
	return d
}

func setFlag(obj *goja.Object, name string, f goja.Flag) {
	if f != goja.FLAG_NOT_SET {
		_ = obj.Set(name, f == goja.FLAG_TRUE)
	}
}

func flagOf(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}

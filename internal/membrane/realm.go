package membrane

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// realm holds the intrinsics of one goja runtime, captured before any
// untrusted code can run in it. The membrane only ever reflects on values
// through these captured functions.
type realm struct {
	vm    *goja.Runtime
	hooks Hooks
	name  string

	get                      goja.Callable
	set                      goja.Callable
	has                      goja.Callable
	deleteProperty           goja.Callable
	ownKeysFn                goja.Callable
	getOwnPropertyDescriptor goja.Callable
	defineProperty           goja.Callable
	getPrototypeOf           goja.Callable
	setPrototypeOf           goja.Callable
	isExtensibleFn           goja.Callable
	preventExtensions        goja.Callable

	isArrayFn  goja.Callable
	isFrozenFn goja.Callable
	isSealedFn goja.Callable
	freeze     goja.Callable
	seal       goja.Callable

	errorCtor *goja.Object
}

func newRealm(name string, vm *goja.Runtime, hooks Hooks) (r *realm, err error) {
	if hooks == nil {
		hooks = DefaultHooks{}
	}
	r = &realm{vm: vm, hooks: hooks, name: name}

	err = catch(func() {
		reflect := global(vm, "Reflect")
		object := global(vm, "Object")
		array := global(vm, "Array")

		r.get = method(reflect, "get")
		r.set = method(reflect, "set")
		r.has = method(reflect, "has")
		r.deleteProperty = method(reflect, "deleteProperty")
		r.ownKeysFn = method(reflect, "ownKeys")
		r.getOwnPropertyDescriptor = method(reflect, "getOwnPropertyDescriptor")
		r.defineProperty = method(reflect, "defineProperty")
		r.getPrototypeOf = method(reflect, "getPrototypeOf")
		r.setPrototypeOf = method(reflect, "setPrototypeOf")
		r.isExtensibleFn = method(reflect, "isExtensible")
		r.preventExtensions = method(reflect, "preventExtensions")

		r.isArrayFn = method(array, "isArray")
		r.isFrozenFn = method(object, "isFrozen")
		r.isSealedFn = method(object, "isSealed")
		r.freeze = method(object, "freeze")
		r.seal = method(object, "seal")

		r.errorCtor = global(vm, "Error")
	})
	if err != nil {
		return nil, fmt.Errorf("capture %s intrinsics: %w", name, err)
	}
	return r, nil
}

func global(vm *goja.Runtime, name string) *goja.Object {
	obj, ok := vm.Get(name).(*goja.Object)
	if !ok || obj == nil {
		panic(fmt.Errorf("global %s is not an object", name))
	}
	return obj
}

func method(obj *goja.Object, name string) goja.Callable {
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		panic(fmt.Errorf("%s is not a function", name))
	}
	return fn
}

func (r *realm) key(name string) goja.Value {
	return r.vm.ToValue(name)
}

func (r *realm) idxKey(idx int) goja.Value {
	return r.vm.ToValue(strconv.Itoa(idx))
}

func (r *realm) isArray(v goja.Value) bool {
	res, err := r.isArrayFn(goja.Undefined(), v)
	return err == nil && res.ToBoolean()
}

func (r *realm) isExtensible(obj *goja.Object) (bool, error) {
	res, err := r.isExtensibleFn(goja.Undefined(), obj)
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

func (r *realm) isFrozen(obj *goja.Object) (bool, error) {
	res, err := r.isFrozenFn(goja.Undefined(), obj)
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

func (r *realm) isSealed(obj *goja.Object) (bool, error) {
	res, err := r.isSealedFn(goja.Undefined(), obj)
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

func (r *realm) prototypeOf(obj *goja.Object) (*goja.Object, error) {
	res, err := r.getPrototypeOf(goja.Undefined(), obj)
	if err != nil {
		return nil, err
	}
	return asObject(res), nil
}

// ownKeys lists every own string and symbol key of obj in property order.
func (r *realm) ownKeys(obj *goja.Object) ([]goja.Value, error) {
	res, err := r.ownKeysFn(goja.Undefined(), obj)
	if err != nil {
		return nil, err
	}
	return r.elements(asObject(res))
}

func (r *realm) elements(arr *goja.Object) (items []goja.Value, err error) {
	if arr == nil {
		return nil, nil
	}
	err = catch(func() {
		n := int(arr.Get("length").ToInteger())
		items = make([]goja.Value, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, arr.Get(strconv.Itoa(i)))
		}
	})
	return items, err
}

// ownDescriptor reads the own attribute key of obj. ok is false when the
// attribute does not exist.
func (r *realm) ownDescriptor(obj *goja.Object, key goja.Value) (d descriptor, ok bool, err error) {
	res, err := r.getOwnPropertyDescriptor(goja.Undefined(), obj, key)
	if err != nil {
		return descriptor{}, false, err
	}
	descObj := asObject(res)
	if descObj == nil {
		return descriptor{}, false, nil
	}
	err = catch(func() {
		d = readDescriptor(descObj)
	})
	return d, err == nil, err
}

// define applies d to obj through Reflect.defineProperty. The boolean is the
// realm's own verdict; err is only set when the operation threw.
func (r *realm) define(obj *goja.Object, key goja.Value, d descriptor) (bool, error) {
	res, err := r.defineProperty(goja.Undefined(), obj, key, d.object(r.vm))
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

// stringOf is String(v) for an error message: undefined becomes empty and
// a value whose conversion throws is dropped.
func (r *realm) stringOf(v goja.Value) (str string) {
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	if err := catch(func() { str = v.String() }); err != nil {
		return ""
	}
	return str
}

// newError builds a plain Error of this realm carrying only msg.
func (r *realm) newError(msg string) goja.Value {
	if r.errorCtor != nil {
		if obj, err := r.vm.New(r.errorCtor, r.vm.ToValue(msg)); err == nil {
			return obj
		}
	}
	return r.vm.NewGoError(fmt.Errorf("%s", msg))
}

// must returns v or rethrows err inside this realm unchanged.
func (r *realm) must(v goja.Value, err error) goja.Value {
	if err != nil {
		panic(r.rethrow(err))
	}
	return v
}

func (r *realm) rethrow(err error) interface{} {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return interrupted
	}
	if exc, ok := err.(*goja.Exception); ok {
		return exc
	}
	return r.newError(err.Error())
}

func asObject(v goja.Value) *goja.Object {
	if obj, ok := v.(*goja.Object); ok && obj != nil {
		return obj
	}
	return nil
}

func orNull(obj *goja.Object) goja.Value {
	if obj == nil {
		return goja.Null()
	}
	return obj
}

// catch runs f and turns a panic raised by goja (or by the helpers above)
// into an error.
func catch(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	f()
	return nil
}

func recovered(r interface{}) error {
	switch x := r.(type) {
	case *goja.Exception:
		return x
	case goja.Value:
		return &ThrownError{Value: x}
	case error:
		return x
	default:
		return fmt.Errorf("%v", x)
	}
}

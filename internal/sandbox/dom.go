package sandbox

import (
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// DOM provides a lightweight document for sandboxed JavaScript. It lives in
// the host realm; the guest only ever sees it through the membrane.
type DOM struct {
	root    *Element
	changes []DOMChange
	mu      sync.RWMutex
}

// Element represents a DOM element
type Element struct {
	TagName     string            `json:"tag"`
	ID          string            `json:"id,omitempty"`
	ClassName   string            `json:"class,omitempty"`
	TextContent string            `json:"text,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Children    []*Element        `json:"children,omitempty"`
	Parent      *Element          `json:"-"`
}

// NewDOM creates an empty document
func NewDOM() *DOM {
	return &DOM{
		root: &Element{
			TagName:    "document",
			Attributes: make(map[string]string),
			Children:   []*Element{},
		},
		changes: []DOMChange{},
	}
}

// Root returns the document element
func (d *DOM) Root() *Element {
	return d.root
}

// Query finds elements by selector (simplified)
func (d *DOM) Query(selector string) []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if strings.HasPrefix(selector, "#") {
		id := strings.TrimPrefix(selector, "#")
		if elem := d.findByID(d.root, id); elem != nil {
			return []*Element{elem}
		}
	} else if strings.HasPrefix(selector, ".") {
		class := strings.TrimPrefix(selector, ".")
		return d.findByClass(d.root, class)
	} else {
		return d.findByTag(d.root, selector)
	}

	return []*Element{}
}

// GetChanges returns accumulated DOM changes
func (d *DOM) GetChanges() []DOMChange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DOMChange{}, d.changes...)
}

// RecordChange adds a DOM change
func (d *DOM) RecordChange(change DOMChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
}

// GetAttribute retrieves attribute value
func (e *Element) GetAttribute(name string) string {
	return e.Attributes[name]
}

// SetAttribute sets attribute value
func (e *Element) SetAttribute(name, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[name] = value
}

// Selector returns the most specific simple selector for e
func (e *Element) Selector() string {
	switch {
	case e.ID != "":
		return "#" + e.ID
	case e.ClassName != "":
		return strings.ToLower(e.TagName) + "." + strings.Fields(e.ClassName)[0]
	default:
		return strings.ToLower(e.TagName)
	}
}

func (d *DOM) findByID(elem *Element, id string) *Element {
	if elem.ID == id {
		return elem
	}
	for _, child := range elem.Children {
		if found := d.findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func (d *DOM) findByClass(elem *Element, class string) []*Element {
	var result []*Element
	for _, c := range strings.Fields(elem.ClassName) {
		if c == class {
			result = append(result, elem)
			break
		}
	}
	for _, child := range elem.Children {
		result = append(result, d.findByClass(child, class)...)
	}
	return result
}

func (d *DOM) findByTag(elem *Element, tag string) []*Element {
	var result []*Element
	if strings.EqualFold(elem.TagName, tag) {
		result = append(result, elem)
	}
	for _, child := range elem.Children {
		result = append(result, d.findByTag(child, tag)...)
	}
	return result
}

// AddElement adds a child element
func (e *Element) AddElement(child *Element) {
	child.Parent = e
	e.Children = append(e.Children, child)
}

// Remove removes element from parent
func (e *Element) Remove() {
	if e.Parent == nil {
		return
	}
	children := e.Parent.Children[:0]
	for _, child := range e.Parent.Children {
		if child != e {
			children = append(children, child)
		}
	}
	e.Parent.Children = children
	e.Parent = nil
}

// domBinding builds host-realm objects for one DOM. Element objects are
// cached so that repeated queries hand out the same object, and through the
// membrane, the same wrapper.
type domBinding struct {
	dom      *DOM
	vm       *goja.Runtime
	elements map[*Element]*goja.Object
}

// document builds the host-realm document object for d.
func (d *DOM) document(vm *goja.Runtime) *goja.Object {
	b := &domBinding{dom: d, vm: vm, elements: make(map[*Element]*goja.Object)}
	doc := vm.NewObject()

	_ = doc.Set("querySelector", func(selector string) goja.Value {
		return b.first(d.Query(selector))
	})
	_ = doc.Set("querySelectorAll", func(selector string) goja.Value {
		return b.all(d.Query(selector))
	})
	_ = doc.Set("getElementById", func(id string) goja.Value {
		return b.first(d.Query("#" + id))
	})
	_ = doc.Set("getElementsByClassName", func(class string) goja.Value {
		return b.all(d.Query("." + class))
	})
	_ = doc.Set("getElementsByTagName", func(tag string) goja.Value {
		return b.all(d.Query(tag))
	})
	return doc
}

func (b *domBinding) first(elems []*Element) goja.Value {
	if len(elems) == 0 {
		return goja.Null()
	}
	return b.element(elems[0])
}

func (b *domBinding) all(elems []*Element) goja.Value {
	items := make([]interface{}, len(elems))
	for i, e := range elems {
		items[i] = b.element(e)
	}
	return b.vm.NewArray(items...)
}

func (b *domBinding) element(e *Element) *goja.Object {
	if obj, ok := b.elements[e]; ok {
		return obj
	}
	vm, d := b.vm, b.dom
	obj := vm.NewObject()

	readOnly := func(name string, get func() string) {
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
			d.mu.RLock()
			defer d.mu.RUnlock()
			return vm.ToValue(get())
		})
		_ = obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	readOnly("tagName", func() string { return strings.ToUpper(e.TagName) })
	readOnly("id", func() string { return e.ID })
	readOnly("className", func() string { return e.ClassName })

	textGetter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return vm.ToValue(e.TextContent)
	})
	textSetter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		text := call.Argument(0).String()
		d.mu.Lock()
		e.TextContent = text
		d.mu.Unlock()
		d.RecordChange(DOMChange{Type: "set_text", Selector: e.Selector(), Property: "textContent", Value: text})
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("textContent", textGetter, textSetter, goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = obj.Set("getAttribute", func(name string) goja.Value {
		d.mu.RLock()
		defer d.mu.RUnlock()
		v, ok := e.Attributes[name]
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	_ = obj.Set("setAttribute", func(name, value string) {
		d.mu.Lock()
		e.SetAttribute(name, value)
		d.mu.Unlock()
		d.RecordChange(DOMChange{Type: "set_attribute", Selector: e.Selector(), Property: name, Value: value})
	})

	b.elements[e] = obj
	return obj
}

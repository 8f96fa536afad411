package membrane

import (
	"github.com/dop251/goja"
)

type lifecycle int

const (
	extensible lifecycle = iota
	nonExtensible
	sealed
	frozen
)

type attribute struct {
	key  goja.Value
	desc descriptor // still in the target's realm
}

// targetMeta is the snapshot a static wrapper is initialized from. Values
// stay in the target's realm and are converted lazily on first use, which
// lets self-referential graphs resolve through the identity map.
type targetMeta struct {
	proto      *goja.Object
	attributes []attribute
	lifecycle  lifecycle
	broken     bool
}

// targetMeta introspects target once. Any failure marks it broken and
// discards whatever was collected.
func (s *side) targetMeta(target *goja.Object) targetMeta {
	meta, err := s.readMeta(target)
	if err != nil {
		return targetMeta{broken: true}
	}
	return meta
}

func (s *side) readMeta(target *goja.Object) (meta targetMeta, err error) {
	f := s.from

	if meta.proto, err = f.prototypeOf(target); err != nil {
		return meta, err
	}

	keys, err := f.ownKeys(target)
	if err != nil {
		return meta, err
	}
	meta.attributes = make([]attribute, 0, len(keys))
	for _, key := range keys {
		d, ok, err := f.ownDescriptor(target, key)
		if err != nil {
			return meta, err
		}
		if ok {
			meta.attributes = append(meta.attributes, attribute{key: key, desc: d})
		}
	}

	if meta.lifecycle, err = s.classify(target); err != nil {
		return meta, err
	}

	// A revoked proxy target can fail here even after the reads above.
	if _, err = f.isExtensible(target); err != nil {
		return meta, err
	}
	return meta, nil
}

func (s *side) classify(target *goja.Object) (lifecycle, error) {
	f := s.from
	if ok, err := f.isFrozen(target); err != nil || ok {
		return frozen, err
	}
	if ok, err := f.isSealed(target); err != nil || ok {
		return sealed, err
	}
	ext, err := f.isExtensible(target)
	if err != nil {
		return extensible, err
	}
	if !ext {
		return nonExtensible, nil
	}
	return extensible, nil
}

package membrane

import (
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
)

type objectRef = weak.Pointer[goja.Object]

// identityMap associates guest objects with host objects in both
// directions. Both sides are held weakly; a pair disappears once either of
// its objects is collected. Cleanups run on a runtime goroutine, hence the
// mutex even though realms themselves are single threaded.
type identityMap struct {
	mu      sync.Mutex
	guestOf map[objectRef]objectRef
	hostOf  map[objectRef]objectRef
}

func weakRef(obj *goja.Object) objectRef {
	return weak.Make(obj)
}

func newIdentityMap() *identityMap {
	return &identityMap{
		guestOf: make(map[objectRef]objectRef),
		hostOf:  make(map[objectRef]objectRef),
	}
}

// bind records guest as the counterpart of host. Binding the same pair again
// is a no-op; binding either side to a different live counterpart fails.
func (m *identityMap) bind(guest, host *goja.Object) error {
	if guest == nil || host == nil {
		return ErrNotObject
	}
	g, h := weakRef(guest), weakRef(host)

	m.mu.Lock()
	cur, hostBound := m.guestOf[h]
	if hostBound && cur.Value() != nil {
		m.mu.Unlock()
		if cur == g {
			return nil
		}
		return ErrRegistration
	}
	if cur, ok := m.hostOf[g]; ok && cur.Value() != nil {
		m.mu.Unlock()
		return ErrRegistration
	}
	m.guestOf[h] = g
	m.hostOf[g] = h
	m.mu.Unlock()

	runtime.AddCleanup(host, m.forgetHost, h)
	runtime.AddCleanup(guest, m.forgetGuest, g)
	return nil
}

func (m *identityMap) guestFor(host *goja.Object) *goja.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.guestOf[weakRef(host)]; ok {
		return g.Value()
	}
	return nil
}

func (m *identityMap) hostFor(guest *goja.Object) *goja.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hostOf[weakRef(guest)]; ok {
		return h.Value()
	}
	return nil
}

func (m *identityMap) forgetHost(h objectRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.guestOf[h]; ok {
		delete(m.guestOf, h)
		if m.hostOf[g] == h {
			delete(m.hostOf, g)
		}
	}
}

func (m *identityMap) forgetGuest(g objectRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hostOf[g]; ok {
		delete(m.hostOf, g)
		if m.guestOf[h] == g {
			delete(m.guestOf, h)
		}
	}
}

func (m *identityMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guestOf)
}

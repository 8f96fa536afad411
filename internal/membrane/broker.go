package membrane

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/monitoring"
)

// LiveMarker is the reserved key whose presence as an own attribute of a
// host value selects the live (dynamic) wrapper over the snapshot one.
var LiveMarker = goja.NewSymbol("membrane.live")

// AttributeTable maps attribute names to descriptors that are already in
// guest form. It feeds Remap.
type AttributeTable map[string]goja.PropertyDescriptor

// Options configures a Broker.
type Options struct {
	HostHooks  Hooks // used to call host values; DefaultHooks when nil
	GuestHooks Hooks // used to call guest values; DefaultHooks when nil
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
}

// Broker is the shared state of one sandbox: the identity map, the
// distortion table and the captured intrinsics of both realms. It must not
// be shared between sandboxes.
type Broker struct {
	host  *realm
	guest *realm

	identity *identityMap

	distortMu   sync.RWMutex
	distortions map[*goja.Object]*goja.Object

	guestward *side // host values presented in the guest
	hostward  *side // guest values presented in the host

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a broker between host and guest. Both runtimes must still be
// pristine: their Reflect and Object intrinsics are captured here.
func New(host, guest *goja.Runtime, opts Options) (*Broker, error) {
	if host == nil || guest == nil {
		return nil, fmt.Errorf("membrane: both realms are required")
	}
	if host == guest {
		return nil, fmt.Errorf("membrane: host and guest must be distinct runtimes")
	}

	hostRealm, err := newRealm("host", host, opts.HostHooks)
	if err != nil {
		return nil, err
	}
	guestRealm, err := newRealm("guest", guest, opts.GuestHooks)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Broker{
		host:        hostRealm,
		guest:       guestRealm,
		identity:    newIdentityMap(),
		distortions: make(map[*goja.Object]*goja.Object),
		logger:      logger.Named("membrane"),
		metrics:     opts.Metrics,
	}
	b.guestward = &side{b: b, from: hostRealm, to: guestRealm}
	b.hostward = &side{b: b, from: guestRealm, to: hostRealm, reverse: true}
	b.guestward.peer = b.hostward
	b.hostward.peer = b.guestward
	return b, nil
}

// Host returns the host runtime.
func (b *Broker) Host() *goja.Runtime { return b.host.vm }

// Guest returns the guest runtime.
func (b *Broker) Guest() *goja.Runtime { return b.guest.vm }

// ToGuestValue returns the guest counterpart of a host value. Primitives
// pass through, arrays are copied, every other object is wrapped once and
// the same wrapper is returned for as long as the host value lives.
func (b *Broker) ToGuestValue(v goja.Value) (goja.Value, error) {
	return b.guestward.convertSafe(v)
}

// ToHostValue returns the host counterpart of a guest value. Wrappers are
// unwrapped; other guest objects are presented to the host through live
// wrappers.
func (b *Broker) ToHostValue(v goja.Value) (goja.Value, error) {
	return b.hostward.convertSafe(v)
}

// SetIdentity binds guest as the permanent counterpart of host. It is meant
// for unforgeable singletons such as intrinsics.
func (b *Broker) SetIdentity(guest, host *goja.Object) error {
	if err := b.identity.bind(guest, host); err != nil {
		return fmt.Errorf("set identity: %w", err)
	}
	return nil
}

// Remap installs table directly on guestTarget and records it as the
// counterpart of hostTarget without creating a wrapper.
func (b *Broker) Remap(guestTarget, hostTarget *goja.Object, table AttributeTable) error {
	if guestTarget == nil || hostTarget == nil {
		return ErrNotObject
	}
	for name, pd := range table {
		ok, err := b.guest.define(guestTarget, b.guest.key(name), fromProperty(pd))
		if err != nil {
			return fmt.Errorf("remap %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("remap %q: attribute rejected", name)
		}
	}
	return b.SetIdentity(guestTarget, hostTarget)
}

// Distort makes every future wrapper of host behave as a wrapper of
// replacement. Wrappers that already exist are not affected.
func (b *Broker) Distort(host, replacement *goja.Object) error {
	if host == nil || replacement == nil {
		return ErrNotObject
	}
	b.distortMu.Lock()
	b.distortions[host] = replacement
	b.distortMu.Unlock()
	return nil
}

func (b *Broker) distortion(host *goja.Object) *goja.Object {
	b.distortMu.RLock()
	defer b.distortMu.RUnlock()
	return b.distortions[host]
}

// HostOf returns the host object guest stands for: the target of a wrapper
// or the counterpart of a linked object. It never creates a wrapper.
func (b *Broker) HostOf(guest *goja.Object) *goja.Object {
	if guest == nil {
		return nil
	}
	return b.identity.hostFor(guest)
}

// Unwrap returns the object a wrapper minted by this broker stands for, in
// whichever realm that object lives. Any other object is returned as is,
// including linked intrinsics.
func (b *Broker) Unwrap(obj *goja.Object) *goja.Object {
	if obj == nil {
		return nil
	}
	counterpart := b.identity.hostFor(obj)
	if counterpart == nil {
		counterpart = b.identity.guestFor(obj)
	}
	if counterpart == nil || !isProxy(obj) {
		return obj
	}
	return counterpart
}

func isProxy(obj *goja.Object) bool {
	_, ok := obj.Export().(goja.Proxy)
	return ok
}

// Revoke permanently disables a wrapper minted by this broker. It reports
// whether guest was such a wrapper.
func (b *Broker) Revoke(guest *goja.Object) bool {
	if guest == nil {
		return false
	}
	if b.identity.hostFor(guest) == nil {
		return false
	}
	if !isProxy(guest) {
		return false
	}
	guest.Export().(goja.Proxy).Revoke()
	b.logger.Debug("wrapper revoked")
	return true
}

// MarkLive tags a host object so that it is wrapped with the live strategy.
func (b *Broker) MarkLive(host *goja.Object) error {
	if host == nil {
		return ErrNotObject
	}
	return catch(func() {
		if err := host.DefineDataPropertySymbol(LiveMarker, b.host.vm.ToValue(true), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			panic(err)
		}
	})
}

// Wrappers reports how many identity pairs are currently alive.
func (b *Broker) Wrappers() int {
	return b.identity.len()
}

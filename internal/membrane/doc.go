/*
Package membrane connects two goja runtimes, a trusted host realm and an
untrusted guest realm, so that objects can flow between them without either
side ever holding a raw reference into the other.

# Overview

Every host object that reaches the guest is replaced by a wrapper: a goja
native proxy whose target is an empty guest-realm shadow. Every guest object
that reaches the host is wrapped the same way in the opposite direction.
Primitives cross unchanged and arrays are copied element by element.

Two wrapper strategies exist for host values:

  - Static wrappers snapshot the host value the first time the guest
    touches them. Guest writes stay on the shadow and later host mutations
    are not observed. Calls and construction still reach the host value.
  - Dynamic wrappers forward every operation live. A host value opts in by
    carrying LiveMarker as an own attribute (see Broker.MarkLive).

Guest values presented in the host are always wrapped dynamically.

# Identity

The broker keeps a bidirectional weak identity map, so crossing the same
object twice yields the same wrapper and crossing a wrapper back yields the
original. Entries disappear when either side is collected. SetIdentity and
Remap add permanent pairs, typically for intrinsics such as Error
constructors.

# Errors

A failure raised by the foreign realm never crosses as is. It is normalized
into a fresh error of the receiving realm that carries only the message,
built with the counterpart constructor when the original constructor has
one in the identity map, and with the plain Error constructor otherwise.

# Usage

	host, guest := goja.New(), goja.New()
	b, err := membrane.New(host, guest, membrane.Options{Logger: logger})
	if err != nil {
		return err
	}

	api := host.NewObject()
	_ = api.Set("version", "1.0")
	v, err := b.ToGuestValue(api)
	if err != nil {
		return err
	}
	guest.Set("api", v)

# Concurrency

A broker inherits the threading rules of goja: both runtimes, and therefore
the broker, must be driven from one goroutine at a time. Only the identity
map tolerates concurrent access, since weak cleanups run on their own.
*/
package membrane

// Package admin implements the admin bus of spec §4.4: a single UDP
// multicast control channel carrying discovery, collision-resolved
// name/port allocation, periodic announcements, link negotiation, mapping
// negotiation, and subscriptions.
package admin

import (
	"fmt"
	"math/rand"
	"time"
)

// NamingState is the device's position in the allocation state machine
// of spec §4.4.
type NamingState int

const (
	StateProbingPort NamingState = iota
	StateProbingName
	StateRegistered
	StateReleased
	StateFailed
)

func (s NamingState) String() string {
	switch s {
	case StateProbingPort:
		return "probing-port"
	case StateProbingName:
		return "probing-name"
	case StateRegistered:
		return "registered"
	case StateReleased:
		return "released"
	default:
		return "failed"
	}
}

const (
	probeQuietInterval = 300 * time.Millisecond
	probeBackoffMin    = 200 * time.Millisecond
	probeBackoffMax    = 500 * time.Millisecond
	maxProbeAttempts   = 20
)

func jitterBackoff() time.Duration {
	span := probeBackoffMax - probeBackoffMin
	return probeBackoffMin + time.Duration(rand.Int63n(int64(span)))
}

// portAllocator resolves a collision-free data-plane port by broadcasting
// intent and waiting out a quiet interval (spec §4.4: "probing-port").
type portAllocator struct {
	candidate      int
	probeDeadline  time.Time
	attempts       int
}

func newPortAllocator(preferred int) *portAllocator {
	c := preferred
	if c == 0 {
		c = 1024 + rand.Intn(48000)
	}
	return &portAllocator{candidate: c}
}

func (p *portAllocator) restartProbe(now time.Time) {
	p.probeDeadline = now.Add(jitterBackoff())
	p.attempts++
}

func (p *portAllocator) collide(now time.Time) error {
	if p.attempts >= maxProbeAttempts {
		return fmt.Errorf("admin: port probe exhausted after %d attempts", p.attempts)
	}
	p.candidate++
	p.restartProbe(now)
	return nil
}

func (p *portAllocator) quiescent(now time.Time) bool {
	return !p.probeDeadline.IsZero() && now.After(p.probeDeadline)
}

// nameAllocator resolves a collision-free ordinal for an identifier by
// broadcasting /name/probe and listening for /name/registered collisions
// (spec §4.4: "probing-name").
type nameAllocator struct {
	identifier    string
	ordinal       int
	probeDeadline time.Time
	attempts      int
}

func newNameAllocator(identifier string) *nameAllocator {
	return &nameAllocator{identifier: identifier, ordinal: 1}
}

func (n *nameAllocator) name() string {
	return fmt.Sprintf("%s.%d", n.identifier, n.ordinal)
}

func (n *nameAllocator) restartProbe(now time.Time) {
	n.probeDeadline = now.Add(jitterBackoff())
	n.attempts++
}

func (n *nameAllocator) collide(now time.Time) error {
	if n.attempts >= maxProbeAttempts {
		return fmt.Errorf("admin: name probe exhausted after %d attempts for identifier %q", n.attempts, n.identifier)
	}
	n.ordinal++
	n.restartProbe(now)
	return nil
}

func (n *nameAllocator) quiescent(now time.Time) bool {
	return !n.probeDeadline.IsZero() && now.After(n.probeDeadline)
}

package admin

import (
	"fmt"

	"github.com/sigmap/sigmap/internal/wire"
)

// handleNameProbe implements the collision side of spec §4.4's naming
// allocator. There are two cases:
//
//   - We are already registered under identifier.ordinal: reply
//     /name/registered so the new prober increments and restarts.
//   - We are ourselves still probing the same identifier.ordinal: this is
//     a symmetric race between two devices claiming the same candidate
//     concurrently. Spec §4.4 only says "if a collision is heard ... the
//     ordinal is incremented", without saying which side yields; this
//     picks the lower sessionID (a random value generated once at
//     construction, carried as the probe's third argument purely to
//     break this tie — see admin.go) as the winner, so both sides apply
//     the same rule and converge without both yielding or both holding.
//     Either side then re-broadcasts its current candidate: the loser
//     probes its new ordinal, and the winner repeats its probe for a
//     peer that may have missed the first one.
func (a *Admin) handleNameProbe(msg *wire.Message) {
	identifier, ordinal, peerSession, ok := parseProbeArgs(msg)
	if !ok || identifier != a.name.identifier || peerSession == a.sessionID {
		return
	}

	switch a.state {
	case StateRegistered:
		if fmt.Sprintf("%s.%d", identifier, ordinal) == a.deviceName {
			a.send("/name/registered", wire.NewBuilder().
				Strs(identifier).Ints(ordinal).Args())
		}
	case StateProbingName:
		if int(ordinal) != a.name.ordinal {
			return
		}
		if peerSession < a.sessionID {
			if err := a.name.collide(a.Now()); err != nil {
				a.fail(err)
				return
			}
		}
		a.sendNameProbe()
	}
}

func (a *Admin) sendNameProbe() {
	a.send("/name/probe", wire.NewBuilder().
		Strs(a.name.identifier).Ints(int64(a.name.ordinal), a.sessionID).Args())
}

// handleNameRegistered is heard when a registered device defends its
// name against a later prober: if we are still probing the same
// identifier.ordinal, we lost the race and must bump.
func (a *Admin) handleNameRegistered(msg *wire.Message) {
	if a.state != StateProbingName {
		return
	}
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 'i' {
		return
	}
	identifier := msg.Args[0].S
	ordinal := msg.Args[1].I

	if identifier != a.name.identifier || int(ordinal) != a.name.ordinal {
		return
	}
	if err := a.name.collide(a.Now()); err != nil {
		a.fail(err)
		return
	}
	a.sendNameProbe()
}

func parseProbeArgs(msg *wire.Message) (identifier string, ordinal int64, session int64, ok bool) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 'i' {
		return "", 0, 0, false
	}
	identifier = msg.Args[0].S
	ordinal = msg.Args[1].I
	if len(msg.Args) >= 3 && msg.Args[2].Type == 'i' {
		session = msg.Args[2].I
	}
	return identifier, ordinal, session, true
}

// handlePortProbe is the port-allocation analogue of handleNameProbe,
// using the same session-id tie-break.
func (a *Admin) handlePortProbe(msg *wire.Message) {
	if a.state != StateProbingPort || len(msg.Args) < 1 || msg.Args[0].Type != 'i' {
		return
	}
	candidate := msg.Args[0].I
	var peerSession int64
	if len(msg.Args) >= 2 && msg.Args[1].Type == 'i' {
		peerSession = msg.Args[1].I
	}
	if peerSession == a.sessionID {
		return
	}
	if int(candidate) != a.port.candidate {
		return
	}
	if peerSession < a.sessionID {
		if err := a.port.collide(a.Now()); err != nil {
			a.fail(err)
			return
		}
	}
	a.send("/port/probe", wire.NewBuilder().Ints(int64(a.port.candidate), a.sessionID).Args())
}

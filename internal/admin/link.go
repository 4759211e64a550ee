package admin

import (
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/sigmap/sigmap/internal/wire"
)

const linkAckTimeout = 2 * time.Second

// pendingLink tracks an outstanding /link request awaiting /linkTo,
// spec §4.4's link negotiation handshake.
type pendingLink struct {
	dst      string
	sentAt   time.Time
	attempts int
}

// RequestLink broadcasts /link for a device-to-device affinity implicitly
// created by the first mapping between src (this device) and dst (spec
// §3: "A device-to-device data-plane affinity, created implicitly by
// first mapping between two devices").
func (a *Admin) RequestLink(dst string) {
	if _, exists := a.db.Link(a.deviceName, dst); exists {
		return
	}
	a.pendingLinks[dst] = &pendingLink{dst: dst, sentAt: a.Now(), attempts: 1}
	a.send("/link", wire.NewBuilder().Strs(a.deviceName, dst).Args())
}

func (a *Admin) handleLink(msg *wire.Message) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 's' {
		return
	}
	src, dst := msg.Args[0].S, msg.Args[1].S
	if dst != a.deviceName {
		return
	}
	dev, ok := a.db.Device(a.deviceName)
	if !ok {
		return
	}
	a.send("/linkTo", wire.NewBuilder().
		Strs(dst, src).
		Key("@IP").Strs(dev.Host).
		Key("@port").Ints(int64(dev.Port)).
		Args())
}

func (a *Admin) handleLinkTo(msg *wire.Message, _ transport.Endpoint) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 's' {
		return
	}
	dst, src := msg.Args[0].S, msg.Args[1].S
	if src != a.deviceName {
		return
	}
	if _, pending := a.pendingLinks[dst]; !pending {
		return
	}

	table, ok := wire.ParseProperties(msg.Path, msg.Args[2:], string(model.PropIP), string(model.PropPort))
	if !ok {
		return
	}
	ip, _ := wire.PropertyString(&table, string(model.PropIP))
	port, _ := wire.PropertyInt(&table, string(model.PropPort))

	if dstDev, exists := a.db.Device(dst); exists {
		dstDev.Host = ip
		dstDev.Port = int(port)
		a.db.AddOrUpdateDevice(dstDev)
	}

	a.db.AddOrUpdateLink(&model.Link{SrcDevice: src, DstDevice: dst, Extra: model.NewPropertyTable()})
	delete(a.pendingLinks, dst)
	a.send("/linked", wire.NewBuilder().Strs(src, dst).Args())
}

func (a *Admin) handleLinked(msg *wire.Message) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 's' {
		return
	}
	src, dst := msg.Args[0].S, msg.Args[1].S
	if dst != a.deviceName {
		return
	}
	a.db.AddOrUpdateLink(&model.Link{SrcDevice: src, DstDevice: dst, Extra: model.NewPropertyTable()})
}

func (a *Admin) handleUnlink(msg *wire.Message) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 's' || msg.Args[1].Type != 's' {
		return
	}
	a.db.RemoveLink(msg.Args[0].S, msg.Args[1].S)
}

// retryPendingLinks re-sends /link for requests that have not seen a
// /linkTo reply within linkAckTimeout, bounded by maxProbeAttempts,
// matching spec §5's "bounded retry budgets" for handshakes.
func (a *Admin) retryPendingLinks(now time.Time) {
	for dst, p := range a.pendingLinks {
		if now.Sub(p.sentAt) < linkAckTimeout {
			continue
		}
		if p.attempts >= maxProbeAttempts {
			delete(a.pendingLinks, dst)
			continue
		}
		p.attempts++
		p.sentAt = now
		a.send("/link", wire.NewBuilder().Strs(a.deviceName, dst).Args())
	}
}

package admin

import (
	"fmt"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/sigmap/sigmap/internal/wire"
)

// Subscription flags, spec §6: "/subscribe <flags:i> <lease:i>".
const (
	SubscribeDevices  int64 = 1 << 0
	SubscribeSignals  int64 = 1 << 1
	SubscribeLinks    int64 = 1 << 2
	SubscribeMappings int64 = 1 << 3
	SubscribeAll            = SubscribeDevices | SubscribeSignals | SubscribeLinks | SubscribeMappings
)

// subscriber is a peer that has asked to receive an immediate snapshot
// plus leased delivery of this device's subsequent change announcements
// (spec §4.2: "kept eventually-consistent across peers via asynchronous
// announcement and subscription messages").
type subscriber struct {
	endpoint  transport.Endpoint
	flags     int64
	expiresAt time.Time
}

func endpointKey(e transport.Endpoint) string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// handleSubscribe registers or renews a lease and immediately sends a
// full snapshot of this device's own records for the requested
// categories; subsequent changes are delivered as the ordinary /device,
// /signal, /linked and /mapped broadcasts already produced by this
// device (spec §6: "full snapshot followed by diff announcements").
func (a *Admin) handleSubscribe(msg *wire.Message, from transport.Endpoint) {
	if len(msg.Args) < 2 || msg.Args[0].Type != 'i' || msg.Args[1].Type != 'i' {
		return
	}
	flags := msg.Args[0].I
	leaseSeconds := msg.Args[1].I
	if leaseSeconds <= 0 {
		leaseSeconds = 60
	}

	key := endpointKey(from)
	a.subscribers[key] = &subscriber{
		endpoint:  from,
		flags:     flags,
		expiresAt: a.Now().Add(time.Duration(leaseSeconds) * time.Second),
	}

	a.sendSnapshot(flags)
}

// sendSnapshot re-broadcasts this device's own state once per requested
// category; every subscriber (not only the requester) benefits, matching
// the admin bus's broadcast-only delivery model.
func (a *Admin) sendSnapshot(flags int64) {
	if flags&SubscribeDevices != 0 {
		a.Announce()
	}
	if flags&SubscribeSignals != 0 {
		for _, dir := range []model.Direction{model.DirectionInput, model.DirectionOutput} {
			cursor := a.db.SignalsByDevice(a.deviceName, dir)
			for {
				sig, ok := cursor.Next()
				if !ok {
					break
				}
				a.AnnounceSignal(sig)
			}
			cursor.Release()
		}
	}
	if flags&SubscribeLinks != 0 {
		cursor := a.db.LinksByDevice(a.deviceName)
		for {
			l, ok := cursor.Next()
			if !ok {
				break
			}
			a.send("/linked", wire.NewBuilder().Strs(l.SrcDevice, l.DstDevice).Args())
		}
		cursor.Release()
	}
	if flags&SubscribeMappings != 0 {
		cursor := a.db.MappingsByDevice(a.deviceName)
		for {
			m, ok := cursor.Next()
			if !ok {
				break
			}
			if m.Status == model.StatusReady || m.Status == model.StatusModified {
				a.send("/mapped", buildMapArgs(m))
			}
		}
		cursor.Release()
	}
}

// Subscribe asks peers for a full snapshot plus leased updates (the
// client side of spec §6's /subscribe).
func (a *Admin) Subscribe(flags int64, lease time.Duration) {
	a.send("/subscribe", wire.NewBuilder().Ints(flags, int64(lease/time.Second)).Args())
}

// expireSubscriptions drops leases that were never renewed, spec §6:
// "leases must be renewed."
func (a *Admin) expireSubscriptions(now time.Time) {
	for key, sub := range a.subscribers {
		if now.After(sub.expiresAt) {
			delete(a.subscribers, key)
		}
	}
}

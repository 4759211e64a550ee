package admin

import (
	"fmt"
	"testing"
	"time"

	"github.com/sigmap/sigmap/internal/store"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/sigmap/sigmap/internal/wire"
)

// harness wires N Admin instances to a shared MemoryNetwork and drives
// them deterministically: step() advances a virtual clock and calls Tick
// on every Admin, then pump() drains every bus's admin inbox into the
// matching Admin.HandleMessage. This is the same glue the device
// package's Poll installs around a real UDP bus, reproduced here so the admin
// package is independently testable (spec §4.5: Poll() is the only
// driver of time and message delivery).
type harness struct {
	t      *testing.T
	net    *transport.MemoryNetwork
	admins []*Admin
	dbs    []*store.Database
	buses  []*transport.MemoryBus
	now    time.Time
}

func newHarness(t *testing.T, identifiers ...string) *harness {
	h := &harness{t: t, net: transport.NewMemoryNetwork(), now: time.Unix(0, 0)}
	for i, id := range identifiers {
		db := store.NewDatabase()
		bus := h.net.Join(fmt.Sprintf("10.0.0.%d", i+1), 9000+i)
		a, err := New(Config{Identifier: id, AnnouncementInterval: 50 * time.Millisecond}, db, bus)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		a.Now = func() time.Time { return h.now }
		h.admins = append(h.admins, a)
		h.dbs = append(h.dbs, db)
		h.buses = append(h.buses, bus)
	}
	return h
}

// pump drains every bus once, dispatching decoded admin messages to every
// Admin's HandleMessage (loopback included, matching real multicast).
func (h *harness) pump() {
	for i, bus := range h.buses {
		for {
			select {
			case pkt := <-bus.AdminInbox():
				msg, ok := wire.Decode(pkt.Data)
				if !ok {
					continue
				}
				h.admins[i].HandleMessage(msg, pkt.From)
			default:
				goto next
			}
		}
	next:
	}
}

// step advances the virtual clock, ticks every admin, then pumps until no
// bus has pending traffic, so handshakes that chain multiple messages
// settle within one step.
func (h *harness) step(d time.Duration) {
	h.now = h.now.Add(d)
	for _, a := range h.admins {
		a.Tick(h.now)
	}
	for i := 0; i < 4; i++ {
		h.pump()
	}
}

// run advances time in small increments for total, pumping after each,
// used to let naming/link/mapping handshakes fully settle.
func (h *harness) run(total time.Duration) {
	const tick = 20 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < total; elapsed += tick {
		h.step(tick)
	}
}

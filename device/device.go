// Package device implements the per-process runtime of spec §4.5: the
// single type a host application constructs to join the signal-mapping
// network, register local signals, push updates, and receive mapped
// samples from peers. It owns the local database, admin bus driver, and
// router, and is the only thing in this module a caller is expected to
// import directly.
package device

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sigmap/sigmap/internal/admin"
	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/router"
	"github.com/sigmap/sigmap/internal/store"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/sigmap/sigmap/internal/wire"
)

// InputCallback is invoked on the caller's Poll goroutine whenever a
// mapped or bypassed sample arrives for a registered input signal.
type InputCallback func(sig *model.Signal, instanceID int, values []float64, timetag int64)

// SignalOpts carries the optional property set of spec §3's signal
// model; nil fields/zero values are left undefined rather than coerced
// to a default, except NumInstances, where zero means one instance.
type SignalOpts struct {
	Unit         string
	Minimum      []float64
	Maximum      []float64
	Rate         float64
	NumInstances int
}

// Config is the device construction configuration. If Bus is nil,
// NewDevice opens a real UDP/IPv6 multicast bus on Interface/Group; tests
// supply an in-process transport.MemoryBus instead.
type Config struct {
	Identifier           string
	Interface            string
	Group                string
	PreferredDataPort    int
	AnnouncementInterval time.Duration
	LivenessTimeout      time.Duration
	Bus                  transport.Bus
}

// Device is the runtime object of spec §4.5, driven entirely by calls to
// Poll from the host application's own loop (spec §5: no background
// goroutines execute admin, database, or router logic).
type Device struct {
	cfg   Config
	db    *store.Database
	admin *admin.Admin
	bus   transport.Bus

	router *router.Router
	ready  bool

	pendingSignals []*model.Signal
	inputCallbacks map[string]InputCallback

	failure error
}

// NewDevice constructs a device and begins the naming/port allocation
// state machine; call Poll repeatedly afterward to drive it to Ready.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.Identifier == "" {
		return nil, fmt.Errorf("device: Identifier is required")
	}
	bus := cfg.Bus
	if bus == nil {
		b, err := transport.NewUDPBus(cfg.Interface, cfg.Group, cfg.PreferredDataPort)
		if err != nil {
			return nil, err
		}
		bus = b
	}

	db := store.NewDatabase()
	a, err := admin.New(admin.Config{
		Identifier: cfg.Identifier,
		// The transport already bound its data-plane socket by the
		// time admin starts (NewUDPBus/MemoryNetwork.Join chose the
		// port), so admin's own "preferred port" is simply whatever
		// the bus actually landed on — its probe only reacts to
		// another device concurrently probing the same number, it
		// never chooses the real socket.
		PreferredDataPort:    bus.DataPort(),
		AnnouncementInterval: cfg.AnnouncementInterval,
		LivenessTimeout:      cfg.LivenessTimeout,
	}, db, bus)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:            cfg,
		db:             db,
		admin:          a,
		bus:            bus,
		inputCallbacks: map[string]InputCallback{},
	}
	a.OnReady(d.onReady)
	a.OnFailure(func(err error) { d.failure = err })
	return d, nil
}

func (d *Device) onReady(name string) {
	d.router = router.New(d.db, name, d)
	for _, sig := range d.pendingSignals {
		sig.DeviceName = name
		d.db.AddOrUpdateSignal(sig)
		d.admin.AnnounceSignal(sig)
	}
	d.pendingSignals = nil
	d.ready = true
	log.Printf("device: registered as %s", name)
}

// Ready reports whether naming has completed and the device has a stable
// address on the network (spec §4.5).
func (d *Device) Ready() bool { return d.ready }

// DeviceName returns the allocated "<identifier>.<ordinal>" name, or ""
// before Ready.
func (d *Device) DeviceName() string { return d.admin.DeviceName() }

// Failed reports the naming failure recorded after retry exhaustion
// (spec §7b), if any.
func (d *Device) Failed() error { return d.failure }

func (d *Device) registerSignal(sig *model.Signal, opts *SignalOpts) (*model.Signal, error) {
	sig.NumInstances = 1
	if opts != nil {
		if opts.Unit != "" {
			sig.Unit = model.Defined(opts.Unit)
		}
		if opts.Minimum != nil {
			sig.Minimum = model.Defined(opts.Minimum)
		}
		if opts.Maximum != nil {
			sig.Maximum = model.Defined(opts.Maximum)
		}
		if opts.Rate != 0 {
			sig.Rate = model.Defined(opts.Rate)
		}
		if opts.NumInstances > 0 {
			sig.NumInstances = opts.NumInstances
		}
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	if d.ready {
		sig.DeviceName = d.DeviceName()
		d.db.AddOrUpdateSignal(sig)
		d.admin.AnnounceSignal(sig)
	} else {
		d.pendingSignals = append(d.pendingSignals, sig)
	}
	return sig, nil
}

// RegisterInput declares a locally-consumed signal. cb, if non-nil, is
// invoked with every sample the router or a bypass mapping delivers to
// it (spec §4.5).
func (d *Device) RegisterInput(name string, valueType model.ValueType, length int, opts *SignalOpts, cb InputCallback) (*model.Signal, error) {
	sig := &model.Signal{Name: name, Direction: model.DirectionInput, Type: valueType, Length: length}
	sig, err := d.registerSignal(sig, opts)
	if err != nil {
		return nil, err
	}
	if cb != nil {
		d.inputCallbacks[name] = cb
	}
	return sig, nil
}

// RegisterOutput declares a locally-produced signal; its samples are
// pushed with UpdateSignal.
func (d *Device) RegisterOutput(name string, valueType model.ValueType, length int, opts *SignalOpts) (*model.Signal, error) {
	sig := &model.Signal{Name: name, Direction: model.DirectionOutput, Type: valueType, Length: length}
	return d.registerSignal(sig, opts)
}

// UpdateSignal pushes a new value for a locally-owned output, triggering
// spec §4.3's router dispatch to every ready outgoing mapping.
func (d *Device) UpdateSignal(sig *model.Signal, values []float64, instanceID int) error {
	if len(values) != sig.Length {
		return fmt.Errorf("device: update %s: got %d values, want %d", sig.FullName(), len(values), sig.Length)
	}
	sig.CurrentValue = model.Defined(values)
	timetag := time.Now().UnixMilli()
	if d.admin != nil {
		timetag = d.admin.Now().UnixMilli()
	}
	d.db.AddOrUpdateSignal(sig)
	if d.router != nil {
		d.router.Dispatch(sig, values, timetag, instanceID)
	}
	return nil
}

// EmitSample implements router.Emitter: it resolves the destination
// device's transport endpoint from the local database (populated by
// /device and /linkTo) and sends one data-plane datagram.
func (d *Device) EmitSample(mapping *model.Mapping, dst *model.Signal, instanceID int, values []float64, timetag int64) error {
	target, ok := d.db.Device(dst.DeviceName)
	if !ok {
		return fmt.Errorf("device: emit %s: destination device %s unknown", mapping.ID, dst.DeviceName)
	}
	b := wire.NewBuilder().Ints(int64(instanceID), timetag)
	switch dst.Type {
	case model.TypeInt32:
		for _, v := range values {
			b.Ints(int64(v))
		}
	case model.TypeChar:
		for _, v := range values {
			b.Arg(wire.Char(byte(v)))
		}
	default: // f, d
		b.Floats(values...)
	}
	msg := &wire.Message{Path: dst.FullName(), Args: b.Args()}
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return d.bus.SendData(data, transport.Endpoint{Host: target.Host, Port: target.Port})
}

// Poll drains pending admin and data-plane traffic and advances every
// timer-driven state machine, blocking for at most timeout while idle.
// It is the sole driver of time and message delivery (spec §5): no
// device code ever runs on a goroutine other than the caller's.
func (d *Device) Poll(timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case pkt, ok := <-d.bus.AdminInbox():
			if !ok {
				d.admin.Tick(time.Now())
				return
			}
			if msg, decOK := wire.Decode(pkt.Data); decOK {
				d.admin.HandleMessage(msg, pkt.From)
			}
		case pkt, ok := <-d.bus.DataInbox():
			if !ok {
				d.admin.Tick(time.Now())
				return
			}
			d.handleData(pkt)
		case <-deadline:
			d.admin.Tick(time.Now())
			return
		}
	}
}

func (d *Device) handleData(pkt transport.Packet) {
	msg, ok := wire.Decode(pkt.Data)
	if !ok {
		return
	}
	name := localSignalName(msg.Path, d.DeviceName())
	cb, hasCB := d.inputCallbacks[name]
	if !hasCB {
		return
	}
	if len(msg.Args) < 2 || msg.Args[0].Type != 'i' || msg.Args[1].Type != 'i' {
		return
	}
	sig, ok := d.db.Signal(d.DeviceName(), name, model.DirectionInput)
	if !ok {
		return
	}
	instanceID := int(msg.Args[0].I)
	timetag := msg.Args[1].I
	values := make([]float64, 0, len(msg.Args)-2)
	for _, a := range msg.Args[2:] {
		switch a.Type {
		case 'f', 'd':
			values = append(values, a.F)
		case 'i':
			values = append(values, float64(a.I))
		case 'c':
			values = append(values, float64(a.C))
		}
	}
	sig.CurrentValue = model.Defined(values)
	cb(sig, instanceID, values, timetag)
}

func localSignalName(fullPath, ownDeviceName string) string {
	prefix := ownDeviceName + "/"
	if strings.HasPrefix(fullPath, prefix) {
		return fullPath[len(prefix):]
	}
	if i := strings.LastIndexByte(fullPath, '/'); i >= 0 {
		return fullPath[i+1:]
	}
	return fullPath
}

// Announce immediately re-broadcasts this device's presence (spec §6's
// /who response and post-registration refresh).
func (d *Device) Announce() {
	if d.ready {
		d.admin.Announce()
	}
}

// Devices returns a cursor over every known device, including mirrors of
// remote peers (spec §4.2).
func (d *Device) Devices() *store.Cursor[*model.Device] { return d.db.AllDevices() }

// Signals returns a cursor over every known signal of the given
// direction, local or mirrored.
func (d *Device) Signals(dir model.Direction) *store.Cursor[*model.Signal] { return d.db.AllSignals(dir) }

// Links returns a cursor over every known device-to-device link.
func (d *Device) Links() *store.Cursor[*model.Link] { return d.db.AllLinks() }

// Mappings returns a cursor over every known mapping.
func (d *Device) Mappings() *store.Cursor[*model.Mapping] { return d.db.AllMappings() }

// Propose starts spec §4.4's mapping negotiation for m, with this device
// as convener.
func (d *Device) Propose(m *model.Mapping) { d.admin.ProposeMapping(m) }

// Modify re-negotiates an existing ready mapping (spec §5).
func (d *Device) Modify(m *model.Mapping, mutate func(*model.Mapping)) {
	d.admin.ModifyMapping(m, mutate)
}

// Unmap releases a mapping by ID.
func (d *Device) Unmap(id string) { d.admin.UnmapMapping(id) }

// Subscribe asks peers for a full snapshot plus leased change delivery
// (spec §6's /subscribe).
func (d *Device) Subscribe(flags int64, lease time.Duration) { d.admin.Subscribe(flags, lease) }

// Subscription category flags, re-exported from internal/admin for
// callers of Subscribe outside this module.
const (
	SubscribeDevices  = admin.SubscribeDevices
	SubscribeSignals  = admin.SubscribeSignals
	SubscribeLinks    = admin.SubscribeLinks
	SubscribeMappings = admin.SubscribeMappings
	SubscribeAll      = admin.SubscribeAll
)

// OnDeviceChange registers a callback invoked whenever a device record is
// added, modified, or removed, local or mirrored (spec §4.2/§9).
func (d *Device) OnDeviceChange(cb store.DeviceCallback, ctx any) { d.db.OnDeviceChange(cb, ctx) }

// OnSignalChange registers a callback invoked on signal add/modify/remove.
func (d *Device) OnSignalChange(cb store.SignalCallback, ctx any) { d.db.OnSignalChange(cb, ctx) }

// OnLinkChange registers a callback invoked on link add/modify/remove.
func (d *Device) OnLinkChange(cb store.LinkCallback, ctx any) { d.db.OnLinkChange(cb, ctx) }

// OnMappingChange registers a callback invoked on mapping add/modify/remove.
func (d *Device) OnMappingChange(cb store.MappingCallback, ctx any) { d.db.OnMappingChange(cb, ctx) }

// Free releases the device's name and closes its transport, spec §4.5's
// teardown path.
func (d *Device) Free() {
	if d.ready {
		d.admin.Logout()
	}
	d.bus.Close()
}

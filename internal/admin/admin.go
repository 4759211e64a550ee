package admin

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/store"
	"github.com/sigmap/sigmap/internal/transport"
	"github.com/sigmap/sigmap/internal/wire"
)

// Config is the admin bus configuration supplied at device construction
// (spec §6).
type Config struct {
	Identifier             string
	PreferredDataPort      int
	AnnouncementInterval   time.Duration
	LivenessTimeout        time.Duration
}

func (c *Config) applyDefaults() error {
	if c.Identifier == "" {
		return fmt.Errorf("admin: invalid-configuration: identifier is required")
	}
	if c.AnnouncementInterval <= 0 {
		c.AnnouncementInterval = 3 * time.Second
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = 4 * c.AnnouncementInterval
	}
	return nil
}

// Admin is the per-device admin bus driver: naming/port allocation,
// periodic announcement, liveness reaping, and link/mapping negotiation.
// Owned exclusively by one device and driven by its Poll loop (spec §5).
type Admin struct {
	cfg  Config
	db   *store.Database
	bus  transport.Bus
	Now  func() time.Time

	port *portAllocator
	name *nameAllocator

	state       NamingState
	deviceName  string
	failureErr  error

	seq uint16

	lastAnnounceAt   time.Time
	lastSeen         map[string]time.Time
	pendingLinks     map[string]*pendingLink
	pendingMappings  map[string]*pendingMapping
	subscribers      map[string]*subscriber

	// sessionID disambiguates this device's own probe broadcasts from a
	// genuine peer collision when multicast loopback echoes them back
	// (spec §4.4 gives no wire-level self/peer discriminator, so one is
	// introduced here rather than guessing intent).
	sessionID int64

	onReady   func(deviceName string)
	onFailure func(err error)
}

func New(cfg Config, db *store.Database, bus transport.Bus) (*Admin, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	a := &Admin{
		cfg:             cfg,
		db:              db,
		bus:             bus,
		Now:             time.Now,
		sessionID:       rand.Int63(),
		port:            newPortAllocator(cfg.PreferredDataPort),
		name:            newNameAllocator(cfg.Identifier),
		state:           StateProbingPort,
		lastSeen:        map[string]time.Time{},
		pendingLinks:    map[string]*pendingLink{},
		pendingMappings: map[string]*pendingMapping{},
		subscribers:     map[string]*subscriber{},
	}
	return a, nil
}

func (a *Admin) OnReady(fn func(deviceName string))   { a.onReady = fn }
func (a *Admin) OnFailure(fn func(err error))         { a.onFailure = fn }
func (a *Admin) State() NamingState                   { return a.state }
func (a *Admin) DeviceName() string                   { return a.deviceName }

func (a *Admin) nextSeq() uint16 {
	a.seq++
	return a.seq
}

func (a *Admin) send(path string, args []wire.Arg) {
	msg := &wire.Message{SequenceNumber: a.nextSeq(), Path: path, Args: args}
	data, err := wire.Encode(msg)
	if err != nil {
		log.Printf("admin: encode %s: %v", path, err)
		return
	}
	if err := a.bus.SendAdmin(data); err != nil {
		log.Printf("admin: send %s: %v", path, err)
	}
}

// Tick drives every timer-based transition: the naming/port state
// machine, periodic announcements, negotiation timeouts, and liveness
// reaping. It is called once per Poll() (spec §4.5/§5): no sleeps, no
// background threads, all time progresses through this call.
func (a *Admin) Tick(now time.Time) {
	switch a.state {
	case StateProbingPort:
		a.tickProbingPort(now)
	case StateProbingName:
		a.tickProbingName(now)
	case StateRegistered:
		a.tickRegistered(now)
		a.reapStaleMirrors(now)
		a.retryPendingLinks(now)
		a.expireModifications(now)
		a.expireSubscriptions(now)
	}
}

func (a *Admin) tickProbingPort(now time.Time) {
	if a.port.probeDeadline.IsZero() {
		a.port.restartProbe(now)
		a.send("/port/probe", wire.NewBuilder().Ints(int64(a.port.candidate), a.sessionID).Args())
		return
	}
	if a.port.quiescent(now) {
		a.state = StateProbingName
		a.name.restartProbe(now)
		a.send("/name/probe", wire.NewBuilder().
			Strs(a.name.identifier).Ints(int64(a.name.ordinal), a.sessionID).Args())
	}
}

func (a *Admin) tickProbingName(now time.Time) {
	if a.name.quiescent(now) {
		a.deviceName = a.name.name()
		a.state = StateRegistered
		a.lastAnnounceAt = now.Add(-a.cfg.AnnouncementInterval) // announce immediately
		dev := &model.Device{
			OrdinalName:  a.deviceName,
			Port:         a.port.candidate,
			RegisteredAt: now.UnixMilli(),
		}
		a.db.AddOrUpdateDevice(dev)
		if a.onReady != nil {
			a.onReady(a.deviceName)
		}
	}
}

func (a *Admin) tickRegistered(now time.Time) {
	jitter := time.Duration(rand.Int63n(int64(a.cfg.AnnouncementInterval)))
	if now.Sub(a.lastAnnounceAt) >= a.cfg.AnnouncementInterval+jitter {
		a.announce()
		a.advertiseCalibration()
		a.lastAnnounceAt = now
	}
}

func (a *Admin) announce() {
	dev, ok := a.db.Device(a.deviceName)
	if !ok {
		return
	}
	canAlias := "n"
	if dev.CanAlias {
		canAlias = "y"
	}
	a.send("/device", wire.NewBuilder().
		Strs(a.deviceName).
		Key("@IP").Strs(dev.Host).
		Key("@port").Ints(int64(dev.Port)).
		Key("@canAlias").Strs(canAlias).
		Args())
}

// Announce broadcasts an immediate /device message (used in response to
// /who and for subscription snapshots).
func (a *Admin) Announce() {
	if a.state == StateRegistered {
		a.announce()
	}
}

// Logout implements the registered -> released transition of spec §4.4
// (and free()'s exit behavior of spec §6).
func (a *Admin) Logout() {
	if a.state != StateRegistered {
		return
	}
	a.send("/logout", wire.NewBuilder().Strs(a.deviceName).Args())
	a.state = StateReleased
}

// Failed reports whether the name/port probe exhausted its retry budget
// (spec §7b: name-collision-exhausted).
func (a *Admin) Failed() (error, bool) {
	return a.failureErr, a.state == StateFailed
}

func (a *Admin) fail(err error) {
	a.state = StateFailed
	a.failureErr = err
	if a.onFailure != nil {
		a.onFailure(err)
	}
}

// HandleMessage dispatches one decoded admin-bus message. Malformed
// messages are already filtered out by the caller (wire.Decode returning
// ok=false); this handles path-level semantics and the
// malformed-message / missing-required-key cases of spec §7a.
func (a *Admin) HandleMessage(msg *wire.Message, from transport.Endpoint) {
	switch msg.Path {
	case "/device":
		a.handleDeviceAnnounce(msg, from)
	case "/who":
		a.Announce()
	case "/logout":
		a.handleLogout(msg)
	case "/name/probe":
		a.handleNameProbe(msg)
	case "/name/registered":
		a.handleNameRegistered(msg)
	case "/port/probe":
		a.handlePortProbe(msg)
	case "/link":
		a.handleLink(msg)
	case "/linkTo":
		a.handleLinkTo(msg, from)
	case "/linked":
		a.handleLinked(msg)
	case "/unlink":
		a.handleUnlink(msg)
	case "/signal":
		a.handleSignalAnnounce(msg)
	case "/map":
		a.handleMap(msg)
	case "/mapTo":
		a.handleMapTo(msg)
	case "/mapped":
		a.handleMapped(msg)
	case "/map/modify":
		a.handleMapModify(msg)
	case "/map/calibrate":
		a.handleMapCalibrate(msg)
	case "/unmap":
		a.handleUnmap(msg)
	case "/subscribe":
		a.handleSubscribe(msg, from)
	default:
		log.Printf("admin: unknown admin path %s", msg.Path)
	}
}

func (a *Admin) handleDeviceAnnounce(msg *wire.Message, from transport.Endpoint) {
	if len(msg.Args) == 0 || msg.Args[0].Type != 's' {
		return
	}
	name := msg.Args[0].S
	if name == a.deviceName {
		return // our own announcement, looped back by multicast loopback
	}

	table, ok := wire.ParseProperties(msg.Path, msg.Args[1:], string(model.PropIP), string(model.PropPort))
	if !ok {
		return
	}
	ip, _ := wire.PropertyString(&table, string(model.PropIP))
	if ip == "" {
		ip = from.Host
	}
	port, _ := wire.PropertyInt(&table, string(model.PropPort))
	canAliasStr, _ := wire.PropertyString(&table, string(model.PropCanAlias))

	dev := &model.Device{
		OrdinalName: name,
		Host:        ip,
		Port:        int(port),
		CanAlias:    canAliasStr == "y",
		Mirror:      true,
	}
	a.db.AddOrUpdateDevice(dev)
	a.lastSeen[name] = a.Now()
}

func (a *Admin) handleLogout(msg *wire.Message) {
	if len(msg.Args) == 0 || msg.Args[0].Type != 's' {
		return
	}
	name := msg.Args[0].S
	a.reapDevice(name)
}

func (a *Admin) reapStaleMirrors(now time.Time) {
	for name, seen := range a.lastSeen {
		if now.Sub(seen) > a.cfg.LivenessTimeout {
			a.reapDevice(name)
		}
	}
}

// reapDevice implements P7/spec §7d: remove a silent mirror and fire
// exactly one removed callback, plus release any mapping that referenced
// it (spec §7c).
func (a *Admin) reapDevice(name string) {
	delete(a.lastSeen, name)
	a.db.RemoveDeviceSignals(name)
	a.db.RemoveDevice(name)

	cursor := a.db.MappingsByDevice(name)
	defer cursor.Release()
	for {
		m, ok := cursor.Next()
		if !ok {
			break
		}
		m.Status = model.StatusReleased
		a.db.RemoveMapping(m.ID)
	}
}

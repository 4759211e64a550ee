// Package store is the per-device local database of spec §4.2: an
// in-memory registry of device, signal, link and mapping records with
// prefix/pattern queries, re-validating cursors, and change callbacks.
// Each Database value belongs to exactly one device (spec §9: "Global
// mutable registries ... should become fields of a per-device Database
// value").
package store

import (
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/sigmap/sigmap/internal/model"
)

// Event is the kind of change a callback observes, per spec §4.2.
type Event int

const (
	EventNew Event = iota
	EventModified
	EventRemoved
)

func (e Event) String() string {
	switch e {
	case EventNew:
		return "new"
	case EventModified:
		return "modified"
	default:
		return "removed"
	}
}

type DeviceCallback func(*model.Device, Event, any)
type SignalCallback func(*model.Signal, Event, any)
type LinkCallback func(*model.Link, Event, any)
type MappingCallback func(*model.Mapping, Event, any)

type callbackKey struct {
	fn  uintptr
	ctx any
}

func keyOf(fn any, ctx any) callbackKey {
	return callbackKey{fn: reflect.ValueOf(fn).Pointer(), ctx: ctx}
}

// Database is the local, per-device registry. All methods are safe to
// call from the poll loop only; queries borrow records that must not
// outlive the next Poll() call (spec §5).
type Database struct {
	mu sync.Mutex

	devices       map[string]*model.Device
	inputSignals  map[string]*model.Signal // key: device/name
	outputSignals map[string]*model.Signal
	links         map[string]*model.Link // key: src->dst
	mappings      map[string]*model.Mapping

	deviceCallbacks  map[callbackKey]DeviceCallback
	signalCallbacks  map[callbackKey]SignalCallback
	linkCallbacks    map[callbackKey]LinkCallback
	mappingCallbacks map[callbackKey]MappingCallback
}

func NewDatabase() *Database {
	return &Database{
		devices:          map[string]*model.Device{},
		inputSignals:     map[string]*model.Signal{},
		outputSignals:    map[string]*model.Signal{},
		links:            map[string]*model.Link{},
		mappings:         map[string]*model.Mapping{},
		deviceCallbacks:  map[callbackKey]DeviceCallback{},
		signalCallbacks:  map[callbackKey]SignalCallback{},
		linkCallbacks:    map[callbackKey]LinkCallback{},
		mappingCallbacks: map[callbackKey]MappingCallback{},
	}
}

// --- Devices ---

func (d *Database) AddOrUpdateDevice(dev *model.Device) {
	d.mu.Lock()
	_, existed := d.devices[dev.OrdinalName]
	d.devices[dev.OrdinalName] = dev
	cbs := snapshotValues(d.deviceCallbacks)
	d.mu.Unlock()

	evt := EventModified
	if !existed {
		evt = EventNew
	}
	for _, cb := range cbs {
		cb(dev, evt, nil)
	}
}

func (d *Database) RemoveDevice(name string) {
	d.mu.Lock()
	dev, ok := d.devices[name]
	if ok {
		delete(d.devices, name)
	}
	cbs := snapshotValues(d.deviceCallbacks)
	d.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range cbs {
		cb(dev, EventRemoved, nil)
	}
}

func (d *Database) Device(name string) (*model.Device, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[name]
	return dev, ok
}

func (d *Database) AllDevices() *Cursor[*model.Device] {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := sortedKeys(d.devices)
	return newCursor(keys, func(k string) (*model.Device, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.devices[k]
		return v, ok
	})
}

func (d *Database) DevicesMatching(pattern string) *Cursor[*model.Device] {
	d.mu.Lock()
	var keys []string
	for k := range d.devices {
		if matches(k, pattern) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Device, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.devices[k]
		return v, ok
	})
}

func (d *Database) OnDeviceChange(cb DeviceCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceCallbacks[keyOf(cb, ctx)] = cb
}

func (d *Database) OffDeviceChange(cb DeviceCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.deviceCallbacks, keyOf(cb, ctx))
}

// --- Signals ---

func signalKey(deviceName, signalName string) string {
	return deviceName + "/" + signalName
}

func (d *Database) tableFor(dir model.Direction) map[string]*model.Signal {
	if dir == model.DirectionInput {
		return d.inputSignals
	}
	return d.outputSignals
}

func (d *Database) AddOrUpdateSignal(sig *model.Signal) {
	d.mu.Lock()
	table := d.tableFor(sig.Direction)
	key := signalKey(sig.DeviceName, sig.Name)
	_, existed := table[key]
	table[key] = sig
	cbs := snapshotValues(d.signalCallbacks)
	d.mu.Unlock()

	evt := EventModified
	if !existed {
		evt = EventNew
	}
	for _, cb := range cbs {
		cb(sig, evt, nil)
	}
}

func (d *Database) RemoveSignal(deviceName, signalName string, dir model.Direction) {
	d.mu.Lock()
	table := d.tableFor(dir)
	key := signalKey(deviceName, signalName)
	sig, ok := table[key]
	if ok {
		delete(table, key)
	}
	cbs := snapshotValues(d.signalCallbacks)
	d.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range cbs {
		cb(sig, EventRemoved, nil)
	}
}

// RemoveDeviceSignals removes every signal (both directions) owned by
// deviceName, firing a removed callback for each — used when a mirror's
// originating device is reaped (spec §4.4 liveness).
func (d *Database) RemoveDeviceSignals(deviceName string) {
	d.mu.Lock()
	var removed []*model.Signal
	for _, table := range []map[string]*model.Signal{d.inputSignals, d.outputSignals} {
		for k, sig := range table {
			if sig.DeviceName == deviceName {
				removed = append(removed, sig)
				delete(table, k)
			}
		}
	}
	cbs := snapshotValues(d.signalCallbacks)
	d.mu.Unlock()

	for _, sig := range removed {
		for _, cb := range cbs {
			cb(sig, EventRemoved, nil)
		}
	}
}

func (d *Database) Signal(deviceName, signalName string, dir model.Direction) (*model.Signal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.tableFor(dir)[signalKey(deviceName, signalName)]
	return v, ok
}

// FindSignal looks up a signal by full "device/name" path in either
// direction, used when resolving mapping slots.
func (d *Database) FindSignal(fullName string) (*model.Signal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.inputSignals[fullName]; ok {
		return v, true
	}
	if v, ok := d.outputSignals[fullName]; ok {
		return v, true
	}
	return nil, false
}

func (d *Database) SignalsByDevice(deviceName string, dir model.Direction) *Cursor[*model.Signal] {
	d.mu.Lock()
	var keys []string
	for k, sig := range d.tableFor(dir) {
		if sig.DeviceName == deviceName {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Signal, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.tableFor(dir)[k]
		return v, ok
	})
}

func (d *Database) AllSignals(dir model.Direction) *Cursor[*model.Signal] {
	d.mu.Lock()
	keys := sortedKeys(d.tableFor(dir))
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Signal, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.tableFor(dir)[k]
		return v, ok
	})
}

func (d *Database) OnSignalChange(cb SignalCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signalCallbacks[keyOf(cb, ctx)] = cb
}

func (d *Database) OffSignalChange(cb SignalCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.signalCallbacks, keyOf(cb, ctx))
}

// --- Links ---

func (d *Database) AddOrUpdateLink(link *model.Link) {
	d.mu.Lock()
	key := link.Key()
	_, existed := d.links[key]
	d.links[key] = link
	cbs := snapshotValues(d.linkCallbacks)
	d.mu.Unlock()

	evt := EventModified
	if !existed {
		evt = EventNew
	}
	for _, cb := range cbs {
		cb(link, evt, nil)
	}
}

func (d *Database) RemoveLink(src, dst string) {
	d.mu.Lock()
	key := src + "->" + dst
	link, ok := d.links[key]
	if ok {
		delete(d.links, key)
	}
	cbs := snapshotValues(d.linkCallbacks)
	d.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range cbs {
		cb(link, EventRemoved, nil)
	}
}

func (d *Database) Link(src, dst string) (*model.Link, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.links[src+"->"+dst]
	return v, ok
}

func (d *Database) LinksByDevice(deviceName string) *Cursor[*model.Link] {
	d.mu.Lock()
	var keys []string
	for k, l := range d.links {
		if l.SrcDevice == deviceName || l.DstDevice == deviceName {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Link, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.links[k]
		return v, ok
	})
}

func (d *Database) AllLinks() *Cursor[*model.Link] {
	d.mu.Lock()
	keys := sortedKeys(d.links)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Link, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.links[k]
		return v, ok
	})
}

// OnLinkChange and OffLinkChange implement link callbacks symmetrically
// to device/signal callbacks, resolving spec §9's open question about
// the originally-stubbed link/mapping accessors.
func (d *Database) OnLinkChange(cb LinkCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkCallbacks[keyOf(cb, ctx)] = cb
}

func (d *Database) OffLinkChange(cb LinkCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.linkCallbacks, keyOf(cb, ctx))
}

// --- Mappings ---

func (d *Database) AddOrUpdateMapping(m *model.Mapping) {
	d.mu.Lock()
	_, existed := d.mappings[m.ID]
	d.mappings[m.ID] = m
	cbs := snapshotValues(d.mappingCallbacks)
	d.mu.Unlock()

	evt := EventModified
	if !existed {
		evt = EventNew
	}
	for _, cb := range cbs {
		cb(m, evt, nil)
	}
}

func (d *Database) RemoveMapping(id string) {
	d.mu.Lock()
	m, ok := d.mappings[id]
	if ok {
		delete(d.mappings, id)
	}
	cbs := snapshotValues(d.mappingCallbacks)
	d.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range cbs {
		cb(m, EventRemoved, nil)
	}
}

func (d *Database) Mapping(id string) (*model.Mapping, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.mappings[id]
	return v, ok
}

func (d *Database) MappingsBySourceSignal(fullName string) *Cursor[*model.Mapping] {
	d.mu.Lock()
	var keys []string
	for k, m := range d.mappings {
		for _, slot := range m.SrcSlots {
			if slot.FullName() == fullName {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Mapping, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.mappings[k]
		return v, ok
	})
}

// MappingsByDevice implements spec §9's get_mappings_by_device
// symmetrically to signal/device queries: every mapping touching
// deviceName as a source or destination endpoint.
func (d *Database) MappingsByDevice(deviceName string) *Cursor[*model.Mapping] {
	d.mu.Lock()
	var keys []string
	for k, m := range d.mappings {
		touches := m.DstSlot.DeviceName == deviceName
		for _, s := range m.SrcSlots {
			touches = touches || s.DeviceName == deviceName
		}
		if touches {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Mapping, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.mappings[k]
		return v, ok
	})
}

func (d *Database) AllMappings() *Cursor[*model.Mapping] {
	d.mu.Lock()
	keys := sortedKeys(d.mappings)
	d.mu.Unlock()
	return newCursor(keys, func(k string) (*model.Mapping, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		v, ok := d.mappings[k]
		return v, ok
	})
}

func (d *Database) OnMappingChange(cb MappingCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mappingCallbacks[keyOf(cb, ctx)] = cb
}

func (d *Database) OffMappingChange(cb MappingCallback, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mappingCallbacks, keyOf(cb, ctx))
}

// --- helpers ---

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func snapshotValues[V any](m map[callbackKey]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// matches implements the prefix/substring/glob query surface of spec
// §4.2, generalized from original_source/src/db.c's exact/glob query
// pair: a pattern with no wildcard matches as a plain substring, a
// pattern containing '*', '?' or '[' is matched with path.Match semantics.
func matches(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
	return strings.Contains(name, pattern)
}

package admin

import (
	"fmt"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/wire"
)

const mapAckTimeout = 2 * time.Second

type mappingRole int

const (
	roleConvener mappingRole = iota
	roleDestination
)

// pendingMapping tracks a negotiation in flight: a proposed mapping
// awaiting /mapTo (convener side) or /mapped (destination side), or a
// modification awaiting a fresh /mapped ack (spec §4.4: "Modifications
// re-issue /map/modify and require a fresh /mapped ack; unack'd
// modifications time out and revert").
type pendingMapping struct {
	mapping        *model.Mapping
	role           mappingRole
	deadline       time.Time
	attempts       int
	isModification bool
	revertTo       *model.Mapping // snapshot to restore on modify timeout
}

// ProposeMapping is the convener side of spec §4.4's mapping negotiation:
// broadcast /map and move the mapping to "pending" awaiting /mapTo then
// /mapped.
func (a *Admin) ProposeMapping(m *model.Mapping) {
	m.Status = model.StatusPending
	a.db.AddOrUpdateMapping(m)
	a.pendingMappings[m.ID] = &pendingMapping{mapping: m, role: roleConvener, deadline: a.Now().Add(mapAckTimeout), attempts: 1}

	if m.DstSlot.DeviceName != a.deviceName {
		a.RequestLink(m.DstSlot.DeviceName)
	}
	a.send("/map", buildMapArgs(m))
}

func buildMapArgs(m *model.Mapping) []wire.Arg {
	b := wire.NewBuilder()
	srcNames := make([]string, len(m.SrcSlots))
	for i, s := range m.SrcSlots {
		srcNames[i] = s.FullName()
	}
	b.Strs(srcNames...).Strs("->").Strs(m.DstSlot.FullName())
	b.Key(string(model.PropID)).Strs(m.ID)
	b.Key(string(model.PropMode)).Strs(m.Mode.String())
	if m.Expression != "" {
		b.Key(string(model.PropExpression)).Strs(m.Expression)
	}
	if m.SrcMin.IsDefined() {
		b.Key(string(model.PropSrcMin)).Floats(m.SrcMin.Get()...)
	}
	if m.SrcMax.IsDefined() {
		b.Key(string(model.PropSrcMax)).Floats(m.SrcMax.Get()...)
	}
	if m.DstMin.IsDefined() {
		b.Key(string(model.PropDestMin)).Floats(m.DstMin.Get()...)
	}
	if m.DstMax.IsDefined() {
		b.Key(string(model.PropDestMax)).Floats(m.DstMax.Get()...)
	}
	b.Key(string(model.PropBoundMin)).Strs(boundName(m.BoundMin))
	b.Key(string(model.PropBoundMax)).Strs(boundName(m.BoundMax))
	b.Key(string(model.PropMute)).Bools(m.Muted)
	b.Key(string(model.PropSendAsInstance)).Bools(m.SendAsInstance)
	if len(m.Scope) > 0 {
		scope := make([]string, 0, len(m.Scope))
		for d := range m.Scope {
			scope = append(scope, d)
		}
		b.Key(string(model.PropScope)).Strs(scope...)
	}
	return b.Args()
}

func boundName(b model.BoundAction) string {
	switch b {
	case model.BoundMute:
		return "mute"
	case model.BoundClamp:
		return "clamp"
	case model.BoundFold:
		return "fold"
	case model.BoundWrap:
		return "wrap"
	default:
		return "none"
	}
}

// parseMapArgs splits the positional "src... -> dst" header from the
// trailing @property list and decodes the mapping parameters, spec
// §6: "/map <src_signal…> -> <dst_signal> @…".
func parseMapArgs(msg *wire.Message) (srcs []model.Slot, dst model.Slot, table model.PropertyTable, ok bool) {
	arrow := -1
	for i, arg := range msg.Args {
		if arg.Type == 's' && arg.S == "->" {
			arrow = i
			break
		}
	}
	if arrow < 1 || arrow+1 >= len(msg.Args) {
		return nil, model.Slot{}, model.PropertyTable{}, false
	}
	for i := 0; i < arrow; i++ {
		if msg.Args[i].Type != 's' {
			return nil, model.Slot{}, model.PropertyTable{}, false
		}
		srcs = append(srcs, parseSlot(msg.Args[i].S))
	}
	propStart := arrow + 2
	if msg.Args[arrow+1].Type != 's' {
		return nil, model.Slot{}, model.PropertyTable{}, false
	}
	dst = parseSlot(msg.Args[arrow+1].S)

	table, ok = wire.ParseProperties(msg.Path, msg.Args[propStart:], string(model.PropID))
	return srcs, dst, table, ok
}

func parseSlot(fullName string) model.Slot {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '/' {
			return model.Slot{DeviceName: fullName[:i], SignalName: fullName[i+1:]}
		}
	}
	return model.Slot{SignalName: fullName}
}

func applyMappingProps(m *model.Mapping, table model.PropertyTable) {
	if id, ok := wire.PropertyString(&table, string(model.PropID)); ok {
		m.ID = id
	}
	if modeStr, ok := wire.PropertyString(&table, string(model.PropMode)); ok {
		if mode, err := model.ParseMode(modeStr); err == nil {
			m.Mode = mode
		}
	}
	if expr, ok := wire.PropertyString(&table, string(model.PropExpression)); ok {
		m.Expression = expr
	}
	if v, ok := wire.PropertyFloats(&table, string(model.PropSrcMin)); ok {
		m.SrcMin = model.Defined(v)
	}
	if v, ok := wire.PropertyFloats(&table, string(model.PropSrcMax)); ok {
		m.SrcMax = model.Defined(v)
	}
	if v, ok := wire.PropertyFloats(&table, string(model.PropDestMin)); ok {
		m.DstMin = model.Defined(v)
	}
	if v, ok := wire.PropertyFloats(&table, string(model.PropDestMax)); ok {
		m.DstMax = model.Defined(v)
	}
	if s, ok := wire.PropertyString(&table, string(model.PropBoundMin)); ok {
		if b, err := model.ParseBoundAction(s); err == nil {
			m.BoundMin = b
		}
	}
	if s, ok := wire.PropertyString(&table, string(model.PropBoundMax)); ok {
		if b, err := model.ParseBoundAction(s); err == nil {
			m.BoundMax = b
		}
	}
	if b, ok := wire.PropertyBool(&table, string(model.PropMute)); ok {
		m.Muted = b
	}
	if b, ok := wire.PropertyBool(&table, string(model.PropSendAsInstance)); ok {
		m.SendAsInstance = b
	}
	if v, ok := table.Get(string(model.PropScope)); ok && v.Type == 's' {
		m.Scope = map[string]struct{}{}
		for _, d := range v.Strs {
			m.Scope[d] = struct{}{}
		}
	}
}

// handleMap is the destination side: validate the referenced signals
// exist (spec §7c: unknown signal -> negotiation failure), reconcile
// type/length, and reply /mapTo.
func (a *Admin) handleMap(msg *wire.Message) {
	srcs, dst, table, ok := parseMapArgs(msg)
	if !ok || dst.DeviceName != a.deviceName {
		return
	}

	dstSig, found := a.db.FindSignal(dst.FullName())
	if !found {
		return // §7c: unknown signal, drop silently, convener will time out
	}

	m := &model.Mapping{SrcSlots: srcs, DstSlot: dst, Status: model.StatusPending}
	applyMappingProps(m, table)

	if !reconcile(m, dstSig) {
		a.sendMapFailure(m)
		return
	}

	a.db.AddOrUpdateMapping(m)
	a.pendingMappings[m.ID] = &pendingMapping{mapping: m, role: roleDestination, deadline: a.Now().Add(mapAckTimeout), attempts: 1}
	a.send("/mapTo", buildMapArgs(m))
}

// reconcile rejects a bypass or none mapping with more than one source
// slot and fills in a default ID. It does not compare the mapping's
// types or lengths against dstSig, so a type/length mismatch is not
// rejected here.
func reconcile(m *model.Mapping, dstSig *model.Signal) bool {
	if m.Mode == model.ModeBypass || m.Mode == model.ModeNone {
		if len(m.SrcSlots) != 1 {
			return false
		}
	}
	if m.ID == "" {
		m.ID = fmt.Sprintf("%s->%s", m.SrcSlots[0].FullName(), m.DstSlot.FullName())
	}
	return true
}

func (a *Admin) sendMapFailure(m *model.Mapping) {
	m.Status = model.StatusReleased
	a.db.RemoveMapping(m.ID)
}

// handleMapTo is the convener side: the destination has echoed back
// reconciled parameters; accept them and ack with /mapped.
func (a *Admin) handleMapTo(msg *wire.Message) {
	srcs, dst, table, ok := parseMapArgs(msg)
	if !ok || len(srcs) == 0 || srcs[0].DeviceName != a.deviceName {
		return
	}

	id, _ := wire.PropertyString(&table, string(model.PropID))
	pending, exists := a.pendingMappings[id]
	if !exists || pending.role != roleConvener {
		return
	}

	applyMappingProps(pending.mapping, table)
	pending.mapping.Status = model.StatusReady
	a.db.AddOrUpdateMapping(pending.mapping)
	delete(a.pendingMappings, id)

	a.send("/mapped", buildMapArgs(pending.mapping))
}

// handleMapped completes the destination side once both ends have
// observed /mapped, spec §4.4: "A mapping becomes ready only when both
// ends observe /mapped."
func (a *Admin) handleMapped(msg *wire.Message) {
	_, dst, table, ok := parseMapArgs(msg)
	if !ok || dst.DeviceName != a.deviceName {
		return
	}
	id, _ := wire.PropertyString(&table, string(model.PropID))

	if pending, exists := a.pendingMappings[id]; exists {
		applyMappingProps(pending.mapping, table)
		pending.mapping.Status = model.StatusReady
		a.db.AddOrUpdateMapping(pending.mapping)
		delete(a.pendingMappings, id)
		return
	}

	if existing, exists := a.db.Mapping(id); exists {
		applyMappingProps(existing, table)
		existing.Status = model.StatusReady
		a.db.AddOrUpdateMapping(existing)
	}
}

// ModifyMapping re-issues /map/modify for an already-ready mapping,
// keeping a snapshot to revert to if the peer never acks.
func (a *Admin) ModifyMapping(m *model.Mapping, mutate func(*model.Mapping)) {
	snapshot := *m
	mutate(m)
	m.Status = model.StatusModified
	a.db.AddOrUpdateMapping(m)
	a.pendingMappings[m.ID] = &pendingMapping{
		mapping: m, role: roleConvener, deadline: a.Now().Add(mapAckTimeout),
		attempts: 1, isModification: true, revertTo: &snapshot,
	}
	a.send("/map/modify", buildMapArgs(m))
}

func (a *Admin) handleMapModify(msg *wire.Message) {
	_, dst, table, ok := parseMapArgs(msg)
	if !ok || dst.DeviceName != a.deviceName {
		return
	}
	id, _ := wire.PropertyString(&table, string(model.PropID))
	existing, exists := a.db.Mapping(id)
	if !exists {
		return
	}
	applyMappingProps(existing, table)
	existing.Status = model.StatusReady
	a.db.AddOrUpdateMapping(existing)
	a.send("/mapped", buildMapArgs(existing))
}

func (a *Admin) handleUnmap(msg *wire.Message) {
	if len(msg.Args) == 0 || msg.Args[0].Type != 's' {
		return
	}
	id := msg.Args[0].S
	if m, ok := a.db.Mapping(id); ok {
		m.Status = model.StatusReleased
		a.db.RemoveMapping(id)
	}
	delete(a.pendingMappings, id)
}

// UnmapMapping releases a mapping with no ack required, spec §4.4.
func (a *Admin) UnmapMapping(id string) {
	a.send("/unmap", wire.NewBuilder().Strs(id).Args())
	a.db.RemoveMapping(id)
	delete(a.pendingMappings, id)
}

// expireModifications reverts unack'd modifications and abandons
// unack'd proposals past their retry budget, spec §5: "A mapping
// modification that is not ack'd within the configured window reverts
// to the previous ready state" and §7c's ack-timeout failure.
func (a *Admin) expireModifications(now time.Time) {
	for id, p := range a.pendingMappings {
		if now.Before(p.deadline) {
			continue
		}
		if p.isModification {
			*p.mapping = *p.revertTo
			p.mapping.Status = model.StatusReady
			a.db.AddOrUpdateMapping(p.mapping)
			delete(a.pendingMappings, id)
			continue
		}
		if p.attempts >= maxProbeAttempts {
			p.mapping.Status = model.StatusReleased
			a.db.RemoveMapping(id)
			delete(a.pendingMappings, id)
			continue
		}
		p.attempts++
		p.deadline = now.Add(mapAckTimeout)
		if p.role == roleConvener {
			a.send("/map", buildMapArgs(p.mapping))
		}
	}
}

// advertiseCalibration implements spec.md:67's requirement that
// calibrated extremes are periodically advertised via admin so peers
// converge: every mapping this device originates in calibrate mode has
// its current SrcMin/SrcMax re-broadcast on the same cadence as /device
// (tickRegistered), so a peer's mirror of the mapping tracks the
// expanding envelope without waiting for a future /map/modify.
func (a *Admin) advertiseCalibration() {
	cursor := a.db.MappingsByDevice(a.deviceName)
	defer cursor.Release()
	for {
		m, ok := cursor.Next()
		if !ok {
			break
		}
		if m.Mode != model.ModeCalibrate || !mappingSourcedBy(m, a.deviceName) {
			continue
		}
		if !m.SrcMin.IsDefined() || !m.SrcMax.IsDefined() {
			continue
		}
		a.send("/map/calibrate", wire.NewBuilder().
			Strs(m.ID).
			Key(string(model.PropSrcMin)).Floats(m.SrcMin.Get()...).
			Key(string(model.PropSrcMax)).Floats(m.SrcMax.Get()...).
			Args())
	}
}

func mappingSourcedBy(m *model.Mapping, deviceName string) bool {
	for _, s := range m.SrcSlots {
		if s.DeviceName == deviceName {
			return true
		}
	}
	return false
}

// handleMapCalibrate applies a peer's advertised calibrated extremes to
// our mirror of the mapping. It merges rather than overwrites, so a
// duplicate or reordered advertisement can never narrow the envelope
// (P5: calibration monotonicity).
func (a *Admin) handleMapCalibrate(msg *wire.Message) {
	if len(msg.Args) == 0 || msg.Args[0].Type != 's' {
		return
	}
	id := msg.Args[0].S
	m, ok := a.db.Mapping(id)
	if !ok {
		return
	}
	table, ok := wire.ParseProperties(msg.Path, msg.Args[1:], string(model.PropSrcMin), string(model.PropSrcMax))
	if !ok {
		return
	}
	srcMin, _ := wire.PropertyFloats(&table, string(model.PropSrcMin))
	srcMax, _ := wire.PropertyFloats(&table, string(model.PropSrcMax))
	mergeCalibration(m, srcMin, srcMax)
	a.db.AddOrUpdateMapping(m)
}

func mergeCalibration(m *model.Mapping, srcMin, srcMax []float64) {
	if len(srcMin) == 0 || len(srcMax) == 0 {
		return
	}
	if !m.SrcMin.IsDefined() {
		m.SrcMin = model.Defined(append([]float64(nil), srcMin...))
	}
	if !m.SrcMax.IsDefined() {
		m.SrcMax = model.Defined(append([]float64(nil), srcMax...))
	}
	min := m.SrcMin.Get()
	max := m.SrcMax.Get()
	for i := range min {
		if i < len(srcMin) && srcMin[i] < min[i] {
			min[i] = srcMin[i]
		}
		if i < len(max) && i < len(srcMax) && srcMax[i] > max[i] {
			max[i] = srcMax[i]
		}
	}
}

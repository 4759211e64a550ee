package admin

import (
	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/wire"
)

// AnnounceSignal broadcasts /signal for a locally-registered input or
// output, so peer mirrors can populate their signal tables ahead of any
// mapping negotiation that references it (spec §4.4).
func (a *Admin) AnnounceSignal(sig *model.Signal) {
	a.send("/signal", buildSignalArgs(sig))
}

func buildSignalArgs(sig *model.Signal) []wire.Arg {
	b := wire.NewBuilder().Strs(sig.FullName())
	b.Key(string(model.PropDirection)).Strs(sig.Direction.String())
	b.Key(string(model.PropType)).Strs(string(rune(sig.Type)))
	b.Key(string(model.PropLength)).Ints(int64(sig.Length))
	if sig.Unit.IsDefined() {
		b.Key(string(model.PropUnits)).Strs(sig.Unit.Get())
	}
	if sig.Minimum.IsDefined() {
		b.Key(string(model.PropMin)).Floats(sig.Minimum.Get()...)
	}
	if sig.Maximum.IsDefined() {
		b.Key(string(model.PropMax)).Floats(sig.Maximum.Get()...)
	}
	if sig.Rate.IsDefined() {
		b.Key(string(model.PropRate)).Floats(sig.Rate.Get())
	}
	b.Key(string(model.PropInstances)).Ints(int64(sig.NumInstances))
	return b.Args()
}

// handleSignalAnnounce populates a mirror signal record from a peer's
// /signal broadcast (spec §4.4: devices announce each registered signal
// so a mapping naming it can be reconciled without a separate query
// round-trip).
func (a *Admin) handleSignalAnnounce(msg *wire.Message) {
	if len(msg.Args) == 0 || msg.Args[0].Type != 's' {
		return
	}
	full := msg.Args[0].S
	slot := parseSlot(full)
	if slot.DeviceName == a.deviceName {
		return // our own announcement, looped back
	}

	table, ok := wire.ParseProperties(msg.Path, msg.Args[1:], string(model.PropDirection), string(model.PropType), string(model.PropLength))
	if !ok {
		return
	}

	dirStr, _ := wire.PropertyString(&table, string(model.PropDirection))
	dir, err := model.ParseDirection(dirStr)
	if err != nil {
		return
	}
	typeStr, _ := wire.PropertyString(&table, string(model.PropType))
	length, _ := wire.PropertyInt(&table, string(model.PropLength))

	sig := &model.Signal{
		DeviceName:   slot.DeviceName,
		Name:         slot.SignalName,
		Direction:    dir,
		Type:         model.ValueType(typeStrByte(typeStr)),
		Length:       int(length),
		NumInstances: 1,
	}
	if unit, ok := wire.PropertyString(&table, string(model.PropUnits)); ok {
		sig.Unit = model.Defined(unit)
	}
	if min, ok := wire.PropertyFloats(&table, string(model.PropMin)); ok {
		sig.Minimum = model.Defined(min)
	}
	if max, ok := wire.PropertyFloats(&table, string(model.PropMax)); ok {
		sig.Maximum = model.Defined(max)
	}
	if rate, ok := wire.PropertyFloats(&table, string(model.PropRate)); ok && len(rate) > 0 {
		sig.Rate = model.Defined(rate[0])
	}
	if inst, ok := wire.PropertyInt(&table, string(model.PropInstances)); ok && inst > 0 {
		sig.NumInstances = int(inst)
	}
	if err := sig.Validate(); err != nil {
		return
	}

	a.db.AddOrUpdateSignal(sig)
}

func typeStrByte(s string) byte {
	if len(s) == 0 {
		return 'f'
	}
	return s[0]
}

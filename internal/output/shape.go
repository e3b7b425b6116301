package output

import (
	"fmt"

	"tplinker/internal/device"
	"tplinker/internal/executor"
)

type jsonActioned struct {
	Action string `json:"action"`
	Result any    `json:"result"`
}

type jsonRecord struct {
	Addr     string        `json:"addr"`
	Actioned *jsonActioned `json:"actioned,omitempty"`
	Device   string        `json:"device"`
	Data     any           `json:"data"`
}

type statusData struct {
	System   device.SysInfo   `json:"system"`
	Location *device.Location `json:"location"`
}

type actionData struct {
	System device.SysInfo `json:"system"`
}

// StatusRecord shapes a status outcome for mode
func StatusRecord(mode OutputMode, o executor.Outcome) Record {
	addr := o.Endpoint.String()
	if mode == JSONMode {
		return Record{Doc: jsonRecord{
			Addr:   addr,
			Device: o.Device.Kind().String(),
			Data:   statusData{System: o.SysInfo, Location: o.Location},
		}}
	}
	return Record{Row: statusRow(mode, addr, o.SysInfo, o.On, o.Location)}
}

// ActionRecord shapes the outcome of an action command for mode
func ActionRecord(mode OutputMode, o executor.Outcome) Record {
	addr := o.Endpoint.String()
	label, result := "", any(nil)
	if o.Action != nil {
		label, result = o.Action.Label, o.Action.Value()
	}

	if mode == JSONMode {
		return Record{Doc: jsonRecord{
			Addr:     addr,
			Actioned: &jsonActioned{Action: label, Result: result},
			Device:   o.Device.Kind().String(),
			Data:     actionData{System: o.SysInfo},
		}}
	}

	info := o.SysInfo
	var row Row
	if mode == LongMode {
		row = Row{
			{"Address", addr},
			{"MAC", info.MAC},
			{"Alias", info.Alias},
			{"Product", info.DevName},
			{"Type", info.HWType},
			{"Model", info.Model},
			{"Version", info.SWVer},
		}
	} else {
		row = Row{
			{"Address", addr},
			{"Alias", info.Alias},
			{"Product", info.DevName},
			{"Model", info.Model},
		}
	}
	return Record{Row: append(row, Field{label, result})}
}

// DiscoverRecord shapes a discovery announcement for mode. JSON mode keeps the reply
// as the device sent it; the table modes use the status columns, filled from the
// announcement alone.
func DiscoverRecord(mode OutputMode, d device.Discovered) Record {
	addr := d.Endpoint.String()
	if mode == JSONMode {
		return Record{Doc: jsonRecord{
			Addr:   addr,
			Device: d.Device.Kind().String(),
			Data:   d.Data,
		}}
	}

	info := d.Data.SysInfo
	var on *bool
	var loc *device.Location
	if d.Device.Kind() != device.KindUnknown {
		if state, ok := info.PowerState(); ok {
			on = &state
		}
		if l, ok := info.Location(); ok {
			loc = &l
		}
	}
	return Record{Row: statusRow(mode, addr, info, on, loc)}
}

func statusRow(mode OutputMode, addr string, info device.SysInfo, on *bool, loc *device.Location) Row {
	signal := fmt.Sprintf("%d dB", info.RSSI)
	if mode != LongMode {
		return Row{
			{"Address", addr},
			{"Alias", info.Alias},
			{"Product", info.DevName},
			{"Model", info.Model},
			{"Signal", signal},
			{"On?", optionalBool(on)},
		}
	}

	var lat, lon any
	if loc != nil {
		lat, lon = loc.Latitude, loc.Longitude
	}
	return Row{
		{"Address", addr},
		{"MAC", info.MAC},
		{"Alias", info.Alias},
		{"Product", info.DevName},
		{"Type", info.HWType},
		{"Model", info.Model},
		{"Version", info.SWVer},
		{"Signal", signal},
		{"Latitude", lat},
		{"Longitude", lon},
		{"Mode", info.ActiveMode},
		{"On?", optionalBool(on)},
	}
}

// optionalBool keeps an absent state as an untyped nil cell
func optionalBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

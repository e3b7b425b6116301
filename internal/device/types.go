package device

import (
	"encoding/json"
	"fmt"

	"tplinker/internal/errors"
)

// Kind tags the resolved model family of a device
type Kind string

const (
	KindHS100   Kind = "HS100"
	KindHS110   Kind = "HS110"
	KindLB110   Kind = "LB110"
	KindUnknown Kind = "unknown"
)

// String returns the tag used in rendered output
func (k Kind) String() string {
	return string(k)
}

// LightState is the power state block reported by bulbs
type LightState struct {
	OnOff int `json:"on_off"`
}

// SysInfo is the canonical status snapshot reported by a device. Plugs and bulbs
// spell some fields differently; both spellings decode into the same fields.
type SysInfo struct {
	Alias      string `json:"alias"`
	DevName    string `json:"dev_name"`
	Model      string `json:"model"`
	MAC        string `json:"mac"`
	HWType     string `json:"hw_type"`
	SWVer      string `json:"sw_ver"`
	HWVer      string `json:"hw_ver,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	RSSI       int    `json:"rssi"`
	ActiveMode string `json:"active_mode"`

	RelayState *int        `json:"relay_state,omitempty"`
	LightState *LightState `json:"light_state,omitempty"`

	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	LatitudeI  *int     `json:"latitude_i,omitempty"`
	LongitudeI *int     `json:"longitude_i,omitempty"`
}

// UnmarshalJSON accepts both the plug and the bulb field names
func (s *SysInfo) UnmarshalJSON(data []byte) error {
	type plain SysInfo
	var wire struct {
		plain
		Description string `json:"description"`
		Type        string `json:"type"`
		MicType     string `json:"mic_type"`
		MicMAC      string `json:"mic_mac"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*s = SysInfo(wire.plain)
	if s.DevName == "" {
		s.DevName = wire.Description
	}
	if s.HWType == "" {
		s.HWType = wire.Type
	}
	if s.HWType == "" {
		s.HWType = wire.MicType
	}
	if s.MAC == "" {
		s.MAC = wire.MicMAC
	}
	return nil
}

// Location returns the geolocation a device reports, if any. Newer firmware reports
// integer coordinates scaled by 10^4.
func (s SysInfo) Location() (Location, bool) {
	if s.Latitude != nil && s.Longitude != nil {
		return Location{Latitude: *s.Latitude, Longitude: *s.Longitude}, true
	}
	if s.LatitudeI != nil && s.LongitudeI != nil {
		return Location{
			Latitude:  float64(*s.LatitudeI) / 10000,
			Longitude: float64(*s.LongitudeI) / 10000,
		}, true
	}
	return Location{}, false
}

// PowerState returns the on-state carried in the snapshot: the relay state for plugs,
// the light state for bulbs.
func (s SysInfo) PowerState() (bool, bool) {
	switch {
	case s.RelayState != nil:
		return *s.RelayState == 1, true
	case s.LightState != nil:
		return s.LightState.OnOff == 1, true
	}
	return false, false
}

// Location is a device's configured geolocation
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeviceData is a full discovery announcement: the raw reply, kept for structured
// output, and the sysinfo decoded from it.
type DeviceData struct {
	Raw     json.RawMessage
	SysInfo SysInfo
}

// MarshalJSON emits the announcement exactly as the device sent it
func (d DeviceData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("null"), nil
	}
	return d.Raw, nil
}

// ParseDeviceData decodes a plaintext sysinfo reply
func ParseDeviceData(payload []byte) (DeviceData, error) {
	var info SysInfo
	if err := decodeReply(payload, "system", "get_sysinfo", &info); err != nil {
		return DeviceData{}, err
	}
	return DeviceData{Raw: json.RawMessage(append([]byte(nil), payload...)), SysInfo: info}, nil
}

// decodeReply extracts reply[namespace][method] into out and checks the device's
// error code at both the method and the namespace level.
func decodeReply(reply []byte, namespace, method string, out any) error {
	var envelope map[string]map[string]json.RawMessage
	if err := json.Unmarshal(reply, &envelope); err != nil {
		return errors.NewProtocolError("failed to decode reply", err)
	}

	section, ok := envelope[namespace]
	if !ok {
		return errors.NewProtocolError(fmt.Sprintf("reply lacks %q", namespace), nil)
	}

	payload, ok := section[method]
	if !ok {
		if err := checkStatus(section["err_code"], section["err_msg"]); err != nil {
			return err
		}
		return errors.NewProtocolError(fmt.Sprintf("reply lacks %q.%q", namespace, method), nil)
	}

	var status struct {
		ErrCode int    `json:"err_code"`
		ErrMsg  string `json:"err_msg"`
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		return errors.NewProtocolError(fmt.Sprintf("failed to decode %s.%s", namespace, method), err)
	}
	if status.ErrCode != 0 {
		return deviceError(status.ErrCode, status.ErrMsg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.NewProtocolError(fmt.Sprintf("failed to decode %s.%s", namespace, method), err)
	}
	return nil
}

func checkStatus(code, msg json.RawMessage) error {
	if len(code) == 0 {
		return nil
	}
	var errCode int
	if err := json.Unmarshal(code, &errCode); err != nil || errCode == 0 {
		return nil
	}
	var errMsg string
	_ = json.Unmarshal(msg, &errMsg)
	return deviceError(errCode, errMsg)
}

func deviceError(code int, msg string) error {
	if msg == "" {
		msg = "request rejected"
	}
	return errors.NewDeviceError(fmt.Sprintf("device error %d: %s", code, msg), nil)
}

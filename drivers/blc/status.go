package blc

import (
	"errors"
	"strconv"
)

// ErrShortStatus is returned when a status buffer is shorter than StatusSize.
var ErrShortStatus = errors.New("blc: short status response")

// StatusCode is the second status byte. Its value identifies the controller
// generation while idle and the run state once started.
type StatusCode uint8

const (
	StatusUnknown          StatusCode = 0
	StatusMismatch         StatusCode = 1 // local sentinel, never sent by a controller
	StatusStarting         StatusCode = 40
	StatusV3FastReady      StatusCode = 248
	StatusV3Ready          StatusCode = 249
	StatusV2Ready          StatusCode = 250
	StatusRunningRedundant StatusCode = 254
	StatusRunning          StatusCode = 255 // V1 reports this before motors start too
)

func (c StatusCode) String() string {
	switch c {
	case StatusUnknown:
		return "unknown"
	case StatusMismatch:
		return "mismatch"
	case StatusStarting:
		return "starting"
	case StatusV3FastReady:
		return "v3_fast_ready"
	case StatusV3Ready:
		return "v3_ready"
	case StatusV2Ready:
		return "v2_ready"
	case StatusRunningRedundant:
		return "running_redundant"
	case StatusRunning:
		return "running"
	default:
		return "code_" + strconv.Itoa(int(c))
	}
}

// Status is one decoded controller response.
type Status struct {
	Current      uint8 // 0.1 A
	Code         StatusCode
	Temperature  uint8 // °C; V2 or later, 0xFF otherwise
	RPM          uint8
	Extra        uint8 // V3: voltage, V2: mAh, V1: unused
	Voltage      uint8 // 0.1 V; V3 saturates at 255, V2 sends the low byte
	BusErrors    uint8 // V2 or later
	VersionMajor uint8 // V2 or later
	VersionMinor uint8 // V2 or later
}

// DecodeStatus parses the fixed 9-byte layout.
func DecodeStatus(b []byte) (Status, error) {
	if len(b) < StatusSize {
		return Status{}, ErrShortStatus
	}
	return Status{
		Current:      b[offCurrent],
		Code:         StatusCode(b[offCode]),
		Temperature:  b[offTemperature],
		RPM:          b[offRPM],
		Extra:        b[offExtra],
		Voltage:      b[offVoltage],
		BusErrors:    b[offBusErrors],
		VersionMajor: b[offVersionMajor],
		VersionMinor: b[offVersionMinor],
	}, nil
}

// Encode writes s into dst in wire order. dst must hold StatusSize bytes.
func (s Status) Encode(dst []byte) error {
	if len(dst) < StatusSize {
		return ErrShortStatus
	}
	dst[offCurrent] = s.Current
	dst[offCode] = byte(s.Code)
	dst[offTemperature] = s.Temperature
	dst[offRPM] = s.RPM
	dst[offExtra] = s.Extra
	dst[offVoltage] = s.Voltage
	dst[offBusErrors] = s.BusErrors
	dst[offVersionMajor] = s.VersionMajor
	dst[offVersionMinor] = s.VersionMinor
	return nil
}

// Fixed-point conversions.

func (s Status) DeciAmps() int32  { return int32(s.Current) }
func (s Status) DeciVolts() int32 { return int32(s.Voltage) }

// TemperatureC is only reported by extended-status controllers.
func (s Status) TemperatureC(f Features) (int16, bool) {
	if !f.Has(FeatureExtendedStatus) || s.Temperature == 0xFF {
		return 0, false
	}
	return int16(s.Temperature), true
}

// Capacity returns the consumed charge in mAh, which only V2 controllers
// report in the extra byte.
func (s Status) Capacity(f Features) (uint8, bool) {
	if !f.Has(FeatureExtendedStatus) || f.Has(FeatureV3) {
		return 0, false
	}
	return s.Extra, true
}

// Version returns the firmware version of extended-status controllers.
func (s Status) Version(f Features) (major, minor uint8, ok bool) {
	if !f.Has(FeatureExtendedStatus) {
		return 0, 0, false
	}
	return s.VersionMajor, s.VersionMinor, true
}

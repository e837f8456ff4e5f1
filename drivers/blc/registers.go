// Package blc drives a bus of addressed brushless motor controllers (BLCs).
//
// A Device discovers which of the MaxMotors controller slots answer, negotiates
// the controller generation from the status code they report, and then drives
// per-slot setpoints through a non-blocking transaction chain:
//
//	d := blc.New(tx, cfg.Motors, blc.Config{})
//	rep, _ := d.Detect()        // blocking probe of every slot
//	d.SetSetpoint(0, 400)       // store only
//	_ = d.TxSetpoints()         // chain count-1 .. 0, returns immediately
//
// Each chain transaction returns the slot's 9-byte status, decoded into the
// slot record on completion. Status records for slots that did not answer
// discovery are not valid; use Status, which reports presence.
package blc

const (
	// MaxMotors is the number of addressable controller slots.
	MaxMotors = 8

	// BaseAddress is the (8-bit form) bus address of slot 0.
	BaseAddress = 0x52

	// StatusSize is the length of a controller status response.
	StatusSize = 9

	// SetpointMax is the largest value representable in a packed setpoint.
	SetpointMax = 0x7FF
)

// Address returns the bus address of slot: BaseAddress + slot*2.
func Address(slot int) uint8 {
	return BaseAddress + uint8(slot)<<1
}

// SlotOf maps a bus address back to its slot. ok is false for addresses
// outside the controller range or between slot addresses.
func SlotOf(addr uint8) (slot int, ok bool) {
	if addr < BaseAddress || (addr-BaseAddress)&1 != 0 {
		return 0, false
	}
	slot = int(addr-BaseAddress) >> 1
	if slot >= MaxMotors {
		return 0, false
	}
	return slot, true
}

// Status response byte offsets.
const (
	offCurrent = iota
	offCode
	offTemperature
	offRPM
	offExtra
	offVoltage
	offBusErrors
	offVersionMajor
	offVersionMinor
)

// ErrorBits accumulates bus population problems found by discovery. Bits are
// sticky until ClearErrors.
type ErrorBits uint8

const (
	ErrorInconsistentSettings ErrorBits = 1 << 0 // controllers report different generations
	ErrorMissingMotor         ErrorBits = 1 << 1 // configured slot did not answer
	ErrorExtraMotor           ErrorBits = 1 << 2 // unconfigured slot answered
)

func (b ErrorBits) Has(flag ErrorBits) bool { return b&flag != 0 }

// Names lists the set bits, lowest first.
func (b ErrorBits) Names() []string {
	var out []string
	if b.Has(ErrorInconsistentSettings) {
		out = append(out, "inconsistent_settings")
	}
	if b.Has(ErrorMissingMotor) {
		out = append(out, "missing_motor")
	}
	if b.Has(ErrorExtraMotor) {
		out = append(out, "extra_motor")
	}
	return out
}

package blc

// Packed is a setpoint in wire order: [0] holds bits 10..3, [1] bits 2..0.
type Packed [2]byte

// PackSetpoint splits v into wire bytes. Bits above 10 are dropped.
func PackSetpoint(v uint16) Packed {
	return Packed{byte(v >> 3), byte(v) & 0x07}
}

// Value reassembles the 11-bit setpoint.
func (p Packed) Value() uint16 {
	return uint16(p[0])<<3 | uint16(p[1]&0x07)
}

// SetSetpoint stores value for slot; it is sent by the next TxSetpoints.
// Out-of-range slots are ignored.
func (d *Device) SetSetpoint(slot int, value uint16) {
	if slot < 0 || slot >= MaxMotors {
		return
	}
	d.mu.Lock()
	d.setpoints[slot] = PackSetpoint(value)
	d.mu.Unlock()
}

// Setpoint returns the stored (truncated) value for slot.
func (d *Device) Setpoint(slot int) (uint16, bool) {
	if slot < 0 || slot >= MaxMotors {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setpoints[slot].Value(), true
}

// StopAll zeroes every stored setpoint.
func (d *Device) StopAll() {
	d.mu.Lock()
	d.setpoints = [MaxMotors]Packed{}
	d.mu.Unlock()
}

// Commanded reports whether any stored setpoint is non-zero.
func (d *Device) Commanded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.setpoints {
		if p.Value() != 0 {
			return true
		}
	}
	return false
}

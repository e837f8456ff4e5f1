package types

// ------------------------
// BLC motor bus
// ------------------------

// Retained: motors/state
type MotorsState struct {
	Link      Link     `json:"link"`
	Detected  bool     `json:"detected"`
	Present   uint8    `json:"present"` // bit i set => slot i answered discovery
	Expected  uint8    `json:"expected"`
	Motors    uint8    `json:"motors"` // slots transmitted per cycle
	Reference string   `json:"reference"`
	Width     uint8    `json:"width"` // setpoint bytes per transaction
	Features  []string `json:"features,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Stats     BusStats `json:"stats"`
	TS        int64    `json:"ts_ms"`
	Error     string   `json:"error,omitempty"`
}

type BusStats struct {
	Cycles       uint32 `json:"cycles"`
	Transactions uint32 `json:"transactions"`
	Failures     uint32 `json:"failures"`
	Stalls       uint32 `json:"stalls"`
	Busy         uint32 `json:"busy"`
}

// Retained: motors/<slot>/value
type MotorValue struct {
	Slot      int    `json:"slot"`
	Setpoint  uint16 `json:"setpoint"`
	Target    uint16 `json:"target"`
	Code      string `json:"code"`
	DeciAmps  int32  `json:"deci_a"`
	DeciVolts int32  `json:"deci_v"`
	RPM       uint8  `json:"rpm"`
	BusErrors uint8  `json:"i2c_errors"`
	// Only reported by controllers with extended status.
	TempC       *int16 `json:"temp_c,omitempty"`
	CapacityMAh *uint8 `json:"capacity,omitempty"`
	Version     string `json:"version,omitempty"`
	TS          int64  `json:"ts_ms"`
}

// Controls: motors/control/<verb>
type SetpointSet struct {
	Slot  int    `json:"slot"`
	Value uint16 `json:"value"` // 0..2047, clamped to the configured maximum
}

type MotorsStop struct{}        // verb: "stop"
type MotorsDetect struct{}      // verb: "detect"
type MotorsClearErrors struct{} // verb: "clear_errors"

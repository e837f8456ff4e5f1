package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `
device: pico
bus:
  name: "0"
  hz: 400000
motors:
  count: 4
  rate_hz: 50
  stall_timeout_ms: 100
  max_setpoint: 2047
`

const cfgSim = `
device: sim
bus:
  name: sim
motors:
  count: 4
  rate_hz: 20
  slew_per_tick: 64
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"sim":  []byte(cfgSim),
}

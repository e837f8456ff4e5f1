package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"blcbus-go/drivers/blc"
	"blcbus-go/x/strx"
	"blcbus-go/x/timex"

	"gopkg.in/yaml.v3"
)

// Config is the device configuration document.
type Config struct {
	Device string       `yaml:"device"`
	Bus    BusConfig    `yaml:"bus"`
	Motors MotorsConfig `yaml:"motors"`
}

// ---- BUS ----

type BusConfig struct {
	// Name selects the host bus (periph registry name) or MCU peripheral.
	Name string `yaml:"name"`
	Hz   uint32 `yaml:"hz"`
}

// ---- MOTORS ----

type MotorsConfig struct {
	Count          int    `yaml:"count"`
	RateHz         uint32 `yaml:"rate_hz"`
	StallTimeoutMs int    `yaml:"stall_timeout_ms"`
	MaxSetpoint    uint16 `yaml:"max_setpoint"`
	// SlewPerTick bounds the change of a slot's transmitted value per cycle;
	// 0 applies new setpoints immediately.
	SlewPerTick uint16 `yaml:"slew_per_tick"`
}

var _ blc.MotorCounter = MotorsConfig{}

// ExpectedMotorCount implements blc.MotorCounter.
func (m MotorsConfig) ExpectedMotorCount() uint8 {
	if m.Count > 0xFF {
		return 0xFF
	}
	if m.Count < 0 {
		return 0
	}
	return uint8(m.Count)
}

// Period is the transmission interval for RateHz.
func (m MotorsConfig) Period() time.Duration {
	return time.Duration(timex.PeriodFromHz(m.RateHz))
}

func (m MotorsConfig) StallTimeout() time.Duration {
	return time.Duration(m.StallTimeoutMs) * time.Millisecond
}

const (
	DefaultBusName     = "1"
	DefaultBusHz       = 100_000
	DefaultRateHz      = 50
	DefaultStallMs     = 100
	maxRateHz          = 1000
	maxBusHz           = 1_000_000
	maxConfiguredCount = 0xFF
)

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Load reads, validates and normalises the document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// ForDevice resolves the embedded document for device.
func ForDevice(device string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("config: no embedded config for device %q", device)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil document")
	}
	if cfg.Bus.Hz > maxBusHz {
		return fmt.Errorf("bus %q: hz %d above %d", cfg.Bus.Name, cfg.Bus.Hz, maxBusHz)
	}

	m := cfg.Motors
	if m.Count < 0 || m.Count > maxConfiguredCount {
		return fmt.Errorf("motors: count %d outside 0..%d", m.Count, maxConfiguredCount)
	}
	if m.RateHz > maxRateHz {
		return fmt.Errorf("motors: rate_hz %d above %d", m.RateHz, maxRateHz)
	}
	if m.StallTimeoutMs < 0 {
		return fmt.Errorf("motors: stall_timeout_ms %d is negative", m.StallTimeoutMs)
	}
	if m.MaxSetpoint > blc.SetpointMax {
		return fmt.Errorf("motors: max_setpoint %d above %d", m.MaxSetpoint, blc.SetpointMax)
	}
	if m.SlewPerTick > blc.SetpointMax {
		return fmt.Errorf("motors: slew_per_tick %d above %d", m.SlewPerTick, blc.SetpointMax)
	}
	return nil
}

// Normalize fills defaults. It must be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Bus.Name = strx.Coalesce(cfg.Bus.Name, DefaultBusName)
	if cfg.Bus.Hz == 0 {
		cfg.Bus.Hz = DefaultBusHz
	}
	m := &cfg.Motors
	if m.RateHz == 0 {
		m.RateHz = DefaultRateHz
	}
	if m.StallTimeoutMs == 0 {
		m.StallTimeoutMs = DefaultStallMs
	}
	// zero means "unset"; a motor that must never spin is not configured
	if m.MaxSetpoint == 0 {
		m.MaxSetpoint = blc.SetpointMax
	}
}

package main

import (
	"fmt"

	"blcbus-go/drivers/blc"
	"blcbus-go/drivers/blcsim"
	"blcbus-go/drivers/i2cowner"
	"blcbus-go/platform/periphbus"
	"blcbus-go/services/config"

	"tinygo.org/x/drivers"
)

// BusOptions are shared by every command.
type BusOptions struct {
	Config string `long:"config" short:"c" description:"YAML config file (defaults to the embedded profile)"`
	Bus    string `long:"bus" description:"periph I²C bus name, overrides the config"`
	Hz     uint32 `long:"hz" description:"Bus speed in Hz, overrides the config"`
	Motors int    `long:"motors" short:"n" default:"-1" description:"Expected motor count, overrides the config"`

	Sim    bool   `long:"sim" description:"Use simulated controllers instead of hardware"`
	SimGen string `long:"sim-gen" default:"v2" choice:"v1" choice:"v2" choice:"v3" choice:"v3fast" description:"Controller generation to simulate"`
	SimN   int    `long:"sim-count" default:"4" description:"Number of simulated controllers"`
}

var simCodes = map[string]blc.StatusCode{
	"v1":     blc.StatusRunning,
	"v2":     blc.StatusV2Ready,
	"v3":     blc.StatusV3Ready,
	"v3fast": blc.StatusV3FastReady,
}

func (o *BusOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case o.Config != "":
		cfg, err = config.Load(o.Config)
	case o.Sim:
		cfg, err = config.ForDevice("sim")
	default:
		cfg = &config.Config{Device: "host"}
		if err = config.Validate(cfg); err == nil {
			config.Normalize(cfg)
		}
	}
	if err != nil {
		return nil, err
	}
	if o.Bus != "" {
		cfg.Bus.Name = o.Bus
	}
	if o.Hz != 0 {
		cfg.Bus.Hz = o.Hz
	}
	if o.Motors >= 0 {
		cfg.Motors.Count = o.Motors
	}
	return cfg, config.Validate(cfg)
}

// session is an opened bus with its worker.
type session struct {
	cfg   *config.Config
	owner *i2cowner.Owner
	sim   *blcsim.Bus
	close func()
}

func (o *BusOptions) open() (*session, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	var (
		hw      drivers.I2C
		sim     *blcsim.Bus
		closeHW = func() {}
	)
	if o.Sim {
		sim = blcsim.Populate(o.SimN, simCodes[o.SimGen])
		hw = sim
	} else {
		pb, err := periphbus.Open(cfg.Bus.Name, cfg.Bus.Hz)
		if err != nil {
			return nil, fmt.Errorf("open bus: %w", err)
		}
		hw = pb
		closeHW = func() { _ = pb.Close() }
	}

	owner := i2cowner.New(hw, i2cowner.Options{})
	return &session{
		cfg:   cfg,
		owner: owner,
		sim:   sim,
		close: func() {
			owner.Close()
			closeHW()
		},
	}, nil
}

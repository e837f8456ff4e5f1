// Package periphbus opens a Linux I²C adapter through periph.io and exposes it
// as a tinygo drivers.I2C so the same owner and driver code runs on a host.
package periphbus

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// Bus wraps a periph bus handle.
type Bus struct {
	name string
	bc   i2c.BusCloser
}

var _ drivers.I2C = (*Bus)(nil)

// Open initialises the host drivers and opens the named bus ("" selects the
// first one registered). hz of 0 keeps the adapter's current speed.
func Open(name string, hz uint32) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	b, err := wrap(name, bc, hz)
	if err != nil {
		_ = bc.Close()
		return nil, err
	}
	return b, nil
}

func wrap(name string, bc i2c.BusCloser, hz uint32) (*Bus, error) {
	if hz != 0 {
		if err := bc.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
			return nil, errors.Wrapf(err, "i2c %s: set speed %d Hz", name, hz)
		}
	}
	return &Bus{name: name, bc: bc}, nil
}

// Tx performs one combined write/read at a 7-bit address.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if err := b.bc.Tx(addr, w, r); err != nil {
		return errors.Wrapf(err, "i2c %s: tx 0x%02x", b.name, addr)
	}
	return nil
}

func (b *Bus) String() string { return b.bc.String() }

func (b *Bus) Close() error {
	return errors.Wrapf(b.bc.Close(), "close i2c bus %q", b.name)
}

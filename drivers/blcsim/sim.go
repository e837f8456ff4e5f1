// Package blcsim simulates a bus of BLC motor controllers behind the
// drivers.I2C interface, for host tests and the blcctl --sim mode.
package blcsim

import (
	"sync"
	"time"

	"blcbus-go/drivers/blc"
	"blcbus-go/errcode"

	"tinygo.org/x/drivers"
)

// Controller is one simulated BLC.
type Controller struct {
	// Ready is the code reported while the setpoint is zero.
	Ready blc.StatusCode
	// Status is the next response; Code, Current and RPM follow the setpoint.
	Status blc.Status

	setpoint uint16
	width    int
	writes   int
}

// Transaction is one logged bus access.
type Transaction struct {
	Addr uint16 // 7-bit
	W    []byte
	Rn   int
	Err  error
}

// Bus implements drivers.I2C for up to blc.MaxMotors controllers.
type Bus struct {
	mu    sync.Mutex
	ctrls [blc.MaxMotors]*Controller
	log   []Transaction
	// Delay is slept per transaction to mimic bus time.
	Delay time.Duration
	// Keep bounds the transaction log; zero keeps everything.
	Keep int
}

var _ drivers.I2C = (*Bus)(nil)

func New() *Bus { return &Bus{} }

// Populate attaches n controllers of one generation at slots 0..n-1.
func Populate(n int, code blc.StatusCode) *Bus {
	b := New()
	for i := 0; i < n && i < blc.MaxMotors; i++ {
		b.Attach(i, code)
	}
	return b
}

// Attach installs a controller at slot reporting code while idle.
func (b *Bus) Attach(slot int, code blc.StatusCode) *Controller {
	if slot < 0 || slot >= blc.MaxMotors {
		return nil
	}
	c := &Controller{
		Ready: code,
		Status: blc.Status{
			Code:         code,
			Temperature:  0xFF,
			Voltage:      120,
			VersionMajor: 0,
		},
	}
	if f, _ := blc.Negotiate(code); f.Has(blc.FeatureExtendedStatus) {
		c.Status.Temperature = 25
		c.Status.VersionMajor = 2
		c.Status.VersionMinor = 1
	}
	b.mu.Lock()
	b.ctrls[slot] = c
	b.mu.Unlock()
	return c
}

// Detach removes the controller at slot; its address stops acknowledging.
func (b *Bus) Detach(slot int) {
	if slot < 0 || slot >= blc.MaxMotors {
		return
	}
	b.mu.Lock()
	b.ctrls[slot] = nil
	b.mu.Unlock()
}

// Tx answers a write-then-read at a 7-bit address.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.txLocked(addr, w, r)
	b.log = append(b.log, Transaction{Addr: addr, W: append([]byte(nil), w...), Rn: len(r), Err: err})
	if b.Keep > 0 && len(b.log) > b.Keep {
		b.log = b.log[len(b.log)-b.Keep:]
	}
	return err
}

// caller holds lock
func (b *Bus) txLocked(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return errcode.InvalidParams
	}
	slot, ok := blc.SlotOf(uint8(addr << 1))
	if !ok || b.ctrls[slot] == nil {
		return errcode.NoAck
	}
	c := b.ctrls[slot]
	c.writes++
	c.apply(w)
	if len(r) > 0 {
		var full [blc.StatusSize]byte
		_ = c.Status.Encode(full[:])
		copy(r, full[:])
	}
	return nil
}

func (c *Controller) apply(w []byte) {
	var p blc.Packed
	switch len(w) {
	case 0:
		return
	case 1:
		p[0] = w[0]
	default:
		p[0], p[1] = w[0], w[1]
	}
	c.width = len(w)
	c.setpoint = p.Value()

	s := &c.Status
	if c.setpoint == 0 {
		s.Code = c.Ready
		s.Current, s.RPM = 0, 0
		return
	}
	s.Code = blc.StatusRunning
	s.RPM = byte(c.setpoint >> 3)
	s.Current = byte(c.setpoint / 64)
}

// Setpoint returns the last value and width written to slot.
func (b *Bus) Setpoint(slot int) (value uint16, width int, ok bool) {
	if slot < 0 || slot >= blc.MaxMotors {
		return 0, 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.ctrls[slot]
	if c == nil {
		return 0, 0, false
	}
	return c.setpoint, c.width, true
}

// Transactions returns a copy of the log.
func (b *Bus) Transactions() []Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transaction(nil), b.log...)
}

// ResetLog clears the transaction log.
func (b *Bus) ResetLog() {
	b.mu.Lock()
	b.log = nil
	b.mu.Unlock()
}

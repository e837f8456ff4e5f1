package blc

import (
	"fmt"
	"sync"
	"time"

	"blcbus-go/errcode"
	"blcbus-go/x/mathx"

	"go.uber.org/multierr"
)

// Config controls non-protocol behaviour. All fields are optional.
type Config struct {
	// StallTimeout lets TxSetpoints abandon a chain whose completion has not
	// arrived within this long. Zero keeps waiting forever.
	StallTimeout time.Duration
}

type pipeState uint8

const (
	stateIdle pipeState = iota
	stateDetecting
	stateInFlight
)

// Device is the caller-owned state of one controller bus.
type Device struct {
	tx     Transport
	counts MotorCounter
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	detected  bool
	status    [MaxMotors]Status
	setpoints [MaxMotors]Packed
	present   uint8
	reference StatusCode
	features  Features
	width     SetpointWidth
	errs      ErrorBits
	expected  uint8 // configured count, as read
	motors    uint8 // transmitted count, at most MaxMotors

	// Setpoint chain.
	state   pipeState
	cursor  int
	epoch   uint32
	started time.Time
	idle    chan struct{} // closed when the current chain ends
	stats   Stats

	// Per-slot buffers of the current chain. Replaced when a stalled chain
	// is abandoned, since the transport may still hold the old ones.
	bufs *chainBufs
}

type chainBufs struct {
	tx [MaxMotors]Packed
	rx [MaxMotors][StatusSize]byte
}

// New returns an undetected Device. Nothing is sent until Detect.
func New(tx Transport, counts MotorCounter, cfg Config) *Device {
	if counts == nil {
		counts = FixedCount(0)
	}
	return &Device{
		tx:     tx,
		counts: counts,
		cfg:    cfg,
		now:    time.Now,
		width:  WidthLegacy,
		bufs:   new(chainBufs),
	}
}

// Report is the outcome of one discovery pass.
type Report struct {
	Present   uint8 // bit i set when slot i answered
	Reference StatusCode
	Mismatch  bool // this pass saw differing status codes
	Features  Features
	Width     SetpointWidth
	Expected  uint8     // configured motor count
	Errors    ErrorBits // accumulated, including earlier passes
	ProbeErr  error     // per-slot transport errors, for diagnostics
}

func (r Report) IsPresent(slot int) bool {
	return slot >= 0 && slot < MaxMotors && r.Present&(1<<slot) != 0
}

// Generation is the negotiated code, or StatusMismatch when controllers disagree.
func (r Report) Generation() StatusCode {
	if r.Mismatch {
		return StatusMismatch
	}
	return r.Reference
}

// Detect probes every slot with a zero setpoint, records which answered and
// negotiates features from their status code. Population problems are added
// to the sticky error bits; transport errors only mark slots absent. It
// blocks for up to MaxMotors round trips and returns errcode.Busy while a
// setpoint chain is running.
func (d *Device) Detect() (Report, error) {
	d.mu.Lock()
	if d.state != stateIdle {
		d.stats.Busy++
		d.mu.Unlock()
		return Report{}, errcode.Busy
	}
	d.state = stateDetecting
	d.mu.Unlock()

	var (
		rep     Report
		errs    ErrorBits
		records [MaxMotors]Status
		probe   = [1]byte{0}
		ref     = StatusUnknown
	)
	for i := 0; i < MaxMotors; i++ {
		var rx [StatusSize]byte
		err := d.tx.TxWait(Address(i), probe[:], rx[:])
		// Absent slots still get a record; it is never reported as valid.
		records[i], _ = DecodeStatus(rx[:])
		if err != nil {
			rep.ProbeErr = multierr.Append(rep.ProbeErr, fmt.Errorf("slot %d (0x%02x): %w", i, Address(i), err))
			continue
		}
		rep.Present |= 1 << i

		// A controller still reporting unknown does not fix the reference.
		code := records[i].Code
		switch {
		case ref == StatusUnknown:
			ref = code
		case code != ref:
			errs |= ErrorInconsistentSettings
			rep.Mismatch = true
		}
	}

	rep.Reference = ref
	rep.Features, rep.Width = Negotiate(ref)

	// Populated slots are assumed contiguous from slot 0.
	rep.Expected = d.counts.ExpectedMotorCount()
	want := expectedMask(rep.Expected)
	if want&^rep.Present != 0 {
		errs |= ErrorMissingMotor
	}
	if rep.Present&^want != 0 {
		errs |= ErrorExtraMotor
	}

	d.mu.Lock()
	d.status = records
	d.present = rep.Present
	d.reference = ref
	d.features = rep.Features
	d.width = rep.Width
	d.errs |= errs
	d.expected = rep.Expected
	d.motors = mathx.Min(rep.Expected, MaxMotors)
	d.detected = true
	d.state = stateIdle
	rep.Errors = d.errs
	d.mu.Unlock()
	return rep, nil
}

// expectedMask returns the contiguous presence mask for n motors.
func expectedMask(n uint8) uint8 {
	if n >= MaxMotors {
		return 0xFF
	}
	return uint8(1)<<n - 1
}

// Accessors.

// ErrorBits returns the accumulated error state.
func (d *Device) ErrorBits() ErrorBits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errs
}

// ClearErrors resets the sticky error bits. Discovery never does this itself.
func (d *Device) ClearErrors() {
	d.mu.Lock()
	d.errs = 0
	d.mu.Unlock()
}

func (d *Device) Features() Features {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.features
}

func (d *Device) SetpointWidth() SetpointWidth {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width
}

func (d *Device) Presence() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.present
}

// MotorCount is the number of slots each chain services.
func (d *Device) MotorCount() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.motors
}

func (d *Device) Reference() StatusCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reference
}

// Status returns the last record for slot. ok is false when the slot did not
// answer the last discovery, in which case the record is meaningless.
func (d *Device) Status(slot int) (Status, bool) {
	if slot < 0 || slot >= MaxMotors {
		return Status{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status[slot], d.present&(1<<slot) != 0
}

// Snapshot is a consistent copy of the device state.
type Snapshot struct {
	Detected  bool
	Present   uint8
	Reference StatusCode
	Features  Features
	Width     SetpointWidth
	Errors    ErrorBits
	Expected  uint8
	Motors    uint8
	Status    [MaxMotors]Status
	Setpoints [MaxMotors]uint16
	Busy      bool
	Stats     Stats
}

func (s Snapshot) IsPresent(slot int) bool {
	return slot >= 0 && slot < MaxMotors && s.Present&(1<<slot) != 0
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Detected:  d.detected,
		Present:   d.present,
		Reference: d.reference,
		Features:  d.features,
		Width:     d.width,
		Errors:    d.errs,
		Expected:  d.expected,
		Motors:    d.motors,
		Status:    d.status,
		Busy:      d.state != stateIdle,
		Stats:     d.stats,
	}
	for i, p := range d.setpoints {
		s.Setpoints[i] = p.Value()
	}
	return s
}

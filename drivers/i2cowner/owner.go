// Package i2cowner serialises every transaction on one I²C bus through a
// single worker goroutine and exposes both the blocking drivers.I2C shape and
// the completion-callback shape used by the blc setpoint chain.
package i2cowner

import (
	"sync"
	"sync/atomic"
	"time"

	"blcbus-go/errcode"

	"tinygo.org/x/drivers"
)

// request posted to the worker
type request struct {
	addr uint16
	w, r []byte
	done chan error  // buffered(1); set for blocking callers
	cb   func(error) // set for async callers; runs on the worker

	// set by a blocking caller that gave up; the worker skips the bus
	abandoned *atomic.Bool
}

// Options tunes queueing and timeouts. Zero values select defaults.
type Options struct {
	// QueueLen bounds pending transactions. Default 16.
	QueueLen int
	// Timeout bounds enqueue for blocking calls, and completion for Tx.
	// Default 25 ms; negative disables.
	Timeout time.Duration
}

// Owner hosts the bus worker.
type Owner struct {
	hw      drivers.I2C
	reqs    chan request
	quit    chan struct{}
	timeout time.Duration

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Ensure compile-time conformance with drivers.I2C.
var _ drivers.I2C = (*Owner)(nil)

// New starts a worker for hw. Call Close to stop it.
func New(hw drivers.I2C, opt Options) *Owner {
	if opt.QueueLen <= 0 {
		opt.QueueLen = 16
	}
	if opt.Timeout == 0 {
		opt.Timeout = 25 * time.Millisecond
	}
	if opt.Timeout < 0 {
		opt.Timeout = 0
	}
	o := &Owner{
		hw:      hw,
		reqs:    make(chan request, opt.QueueLen),
		quit:    make(chan struct{}),
		timeout: opt.Timeout,
	}
	o.wg.Add(1)
	go o.loop()
	return o
}

func (o *Owner) loop() {
	defer o.wg.Done()
	for {
		select {
		case req := <-o.reqs:
			if req.abandoned != nil && req.abandoned.Load() {
				continue
			}
			err := o.hw.Tx(req.addr, req.w, req.r)
			if req.cb != nil {
				req.cb(err)
				continue
			}
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			o.flush()
			return
		}
	}
}

// flush fails whatever is still queued so async chains see a completion.
func (o *Owner) flush() {
	for {
		select {
		case req := <-o.reqs:
			if req.cb != nil {
				req.cb(errcode.Closed)
			} else {
				select {
				case req.done <- errcode.Closed:
				default:
				}
			}
		default:
			return
		}
	}
}

// Close stops the worker after the current transaction.
func (o *Owner) Close() {
	o.stopOnce.Do(func() { close(o.quit) })
	o.wg.Wait()
}

func (o *Owner) closed() bool {
	select {
	case <-o.quit:
		return true
	default:
		return false
	}
}

// Tx performs a blocking transaction with a 7-bit address. On Timeout the
// request is abandoned: it never reaches the bus if still queued, and r is
// left untouched either way.
func (o *Owner) Tx(addr uint16, w, r []byte) error {
	return o.do(addr, w, r, o.timeout)
}

// TxWait implements blc.Transport. addr is in 8-bit form. Enqueue is bounded
// by the owner timeout; once queued it waits for the bus to finish.
func (o *Owner) TxWait(addr uint8, w, r []byte) error {
	return o.do(uint16(addr>>1), w, r, 0)
}

// do copies w and reads into a worker-owned buffer, so a caller that stops
// waiting never shares memory with the worker.
func (o *Owner) do(addr uint16, w, r []byte, complete time.Duration) error {
	if o.closed() {
		return errcode.Closed
	}
	req := request{
		addr:      addr,
		w:         append([]byte(nil), w...),
		r:         make([]byte, len(r)),
		done:      make(chan error, 1),
		abandoned: new(atomic.Bool),
	}

	var enq <-chan time.Time
	if o.timeout > 0 {
		t := time.NewTimer(o.timeout)
		defer t.Stop()
		enq = t.C
	}
	select {
	case o.reqs <- req:
	case <-enq:
		return errcode.Busy
	case <-o.quit:
		return errcode.Closed
	}

	// Completion gets its own budget.
	var deadline <-chan time.Time
	if complete > 0 {
		c := time.NewTimer(complete)
		defer c.Stop()
		deadline = c.C
	}
	select {
	case err := <-req.done:
		if err == nil {
			copy(r, req.r)
		}
		return err
	case <-deadline:
		req.abandoned.Store(true)
		return errcode.Timeout
	case <-o.quit:
		req.abandoned.Store(true)
		return errcode.Closed
	}
}

// TxAsync implements blc.Transport. It never blocks: a full queue returns
// errcode.Busy and done is not called.
func (o *Owner) TxAsync(addr uint8, w, r []byte, done func(error)) error {
	if o.closed() {
		return errcode.Closed
	}
	if done == nil {
		done = func(error) {}
	}
	select {
	case o.reqs <- request{addr: uint16(addr >> 1), w: w, r: r, cb: done}:
		return nil
	default:
		return errcode.Busy
	}
}

package blc

import (
	"context"

	"blcbus-go/errcode"
)

// Stats counts pipeline activity since New.
type Stats struct {
	Cycles       uint32 // chains that reached slot 0
	Transactions uint32 // completions delivered to the chain
	Failures     uint32 // completions with a transport error
	Stalls       uint32 // chains abandoned after StallTimeout
	Busy         uint32 // calls rejected because the bus was in use
}

type txn struct {
	slot  int
	epoch uint32
	w, r  []byte
}

// TxSetpoints starts a chain that sends every stored setpoint, slot
// count-1 down to 0, one transaction at a time, and returns without waiting.
// Each completion refreshes that slot's status and issues the next slot.
//
// It returns errcode.NotDetected before the first Detect and errcode.Busy
// while a chain or discovery is still running. Transaction failures are not
// reported; the slot simply keeps its previous status.
func (d *Device) TxSetpoints() error {
	d.mu.Lock()
	switch {
	case !d.detected:
		d.mu.Unlock()
		return errcode.NotDetected
	case d.state == stateDetecting:
		d.stats.Busy++
		d.mu.Unlock()
		return errcode.Busy
	case d.state == stateInFlight:
		if d.cfg.StallTimeout <= 0 || d.now().Sub(d.started) < d.cfg.StallTimeout {
			d.stats.Busy++
			d.mu.Unlock()
			return errcode.Busy
		}
		// Abandon; a late completion carries a stale epoch and is dropped.
		d.stats.Stalls++
		d.finishLocked()
		d.bufs = new(chainBufs)
	}
	if d.motors == 0 {
		d.mu.Unlock()
		return nil
	}
	d.epoch++
	d.state = stateInFlight
	d.started = d.now()
	d.cursor = int(d.motors) - 1
	d.idle = make(chan struct{})
	q := d.nextLocked()
	d.mu.Unlock()

	return d.issue(q)
}

// Busy reports whether discovery or a setpoint chain is running.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state != stateIdle
}

// Wait blocks until the current setpoint chain ends or ctx is done.
func (d *Device) Wait(ctx context.Context) error {
	d.mu.Lock()
	ch := d.idle
	d.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a copy of the pipeline counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// caller holds lock
func (d *Device) nextLocked() txn {
	s, b := d.cursor, d.bufs
	b.tx[s] = d.setpoints[s]
	return txn{
		slot:  s,
		epoch: d.epoch,
		w:     b.tx[s][:d.width],
		r:     b.rx[s][:],
	}
}

// issue queues q. The lock must not be held: some transports complete inline.
func (d *Device) issue(q txn) error {
	err := d.tx.TxAsync(Address(q.slot), q.w, q.r, func(err error) { d.complete(q, err) })
	if err == nil {
		return nil
	}
	d.mu.Lock()
	if q.epoch == d.epoch && d.state == stateInFlight {
		d.stats.Failures++
		d.finishLocked()
	}
	d.mu.Unlock()
	return err
}

// complete is the continuation run by the transport for each transaction.
func (d *Device) complete(q txn, err error) {
	d.mu.Lock()
	if q.epoch != d.epoch || d.state != stateInFlight {
		d.mu.Unlock()
		return
	}
	d.stats.Transactions++
	if err != nil {
		d.stats.Failures++
	} else if st, derr := DecodeStatus(q.r); derr == nil {
		d.status[q.slot] = st
	}
	if d.cursor == 0 {
		d.stats.Cycles++
		d.finishLocked()
		d.mu.Unlock()
		return
	}
	d.cursor--
	next := d.nextLocked()
	d.mu.Unlock()

	_ = d.issue(next)
}

// caller holds lock
func (d *Device) finishLocked() {
	d.state = stateIdle
	if d.idle != nil {
		close(d.idle)
		d.idle = nil
	}
}

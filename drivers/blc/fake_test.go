package blc

import (
	"sync"

	"blcbus-go/errcode"
)

type txRecord struct {
	addr  uint8
	w     []byte
	async bool
}

type pendingTx struct {
	addr uint8
	w, r []byte
	done func(error)
}

// fakeBus answers for the addresses in ctrls. Async transactions queue until
// the test pumps them, so the test controls every completion.
type fakeBus struct {
	mu          sync.Mutex
	ctrls       map[uint8]Status
	log         []txRecord
	pending     []pendingTx
	maxInflight int
	refuse      bool // TxAsync fails to queue
}

func newFakeBus() *fakeBus { return &fakeBus{ctrls: map[uint8]Status{}} }

func (f *fakeBus) attach(slot int, st Status) { f.ctrls[Address(slot)] = st }

func (f *fakeBus) TxWait(addr uint8, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, txRecord{addr: addr, w: append([]byte(nil), w...)})
	st, ok := f.ctrls[addr]
	if !ok {
		return errcode.NoAck
	}
	return st.Encode(r)
}

func (f *fakeBus) TxAsync(addr uint8, w, r []byte, done func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return errcode.Busy
	}
	f.log = append(f.log, txRecord{addr: addr, w: append([]byte(nil), w...), async: true})
	f.pending = append(f.pending, pendingTx{addr: addr, w: w, r: r, done: done})
	if len(f.pending) > f.maxInflight {
		f.maxInflight = len(f.pending)
	}
	return nil
}

// pump completes the oldest queued transaction.
func (f *fakeBus) pump() bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	p := f.pending[0]
	f.pending = f.pending[1:]
	st, ok := f.ctrls[p.addr]
	var err error
	if ok {
		_ = st.Encode(p.r)
	} else {
		err = errcode.NoAck
	}
	f.mu.Unlock()
	p.done(err)
	return true
}

// queued returns the transactions not yet completed, oldest first.
func (f *fakeBus) queued() []pendingTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pendingTx(nil), f.pending...)
}

func (f *fakeBus) drain() int {
	n := 0
	for f.pump() {
		n++
	}
	return n
}

func (f *fakeBus) asyncLog() []txRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []txRecord
	for _, r := range f.log {
		if r.async {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeBus) reset() {
	f.mu.Lock()
	f.log = nil
	f.maxInflight = 0
	f.mu.Unlock()
}

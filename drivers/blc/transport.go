package blc

// Transport issues write-then-read transactions on the controller bus.
// Addresses are in the 8-bit form returned by Address.
type Transport interface {
	// TxWait writes w, reads len(r) bytes and blocks until the transaction
	// completes. A non-nil error means the addressed controller did not answer.
	TxWait(addr uint8, w, r []byte) error
	// TxAsync queues the same transaction and returns at once. done runs
	// exactly once, after completion, with the transaction error. w and r must
	// stay untouched until then. A non-nil return means nothing was queued and
	// done will not run.
	TxAsync(addr uint8, w, r []byte, done func(error)) error
}

// MotorCounter supplies the configured number of motors.
type MotorCounter interface {
	ExpectedMotorCount() uint8
}

// FixedCount is a constant MotorCounter.
type FixedCount uint8

func (n FixedCount) ExpectedMotorCount() uint8 { return uint8(n) }

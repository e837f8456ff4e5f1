package blcsim

import (
	"errors"
	"testing"

	"blcbus-go/drivers/blc"
	"blcbus-go/errcode"
)

func TestBus_AbsentSlotNoAck(t *testing.T) {
	b := Populate(2, blc.StatusV2Ready)
	rd := make([]byte, blc.StatusSize)
	if err := b.Tx(uint16(blc.Address(2)>>1), []byte{0}, rd); !errors.Is(err, errcode.NoAck) {
		t.Fatalf("err = %v, want NoAck", err)
	}
	if err := b.Tx(0x10, nil, nil); !errors.Is(err, errcode.NoAck) {
		t.Fatalf("foreign address err = %v", err)
	}
	if err := b.Tx(uint16(blc.Address(1)>>1), []byte{0}, rd); err != nil {
		t.Fatalf("present slot: %v", err)
	}
	st, err := blc.DecodeStatus(rd)
	if err != nil || st.Code != blc.StatusV2Ready {
		t.Fatalf("status = %+v, %v", st, err)
	}
}

func TestBus_SetpointDrivesStatus(t *testing.T) {
	b := New()
	b.Attach(0, blc.StatusV3FastReady)
	addr := uint16(blc.Address(0) >> 1)

	p := blc.PackSetpoint(800)
	rd := make([]byte, blc.StatusSize)
	if err := b.Tx(addr, p[:], rd); err != nil {
		t.Fatal(err)
	}
	st, _ := blc.DecodeStatus(rd)
	if st.Code != blc.StatusRunning || st.RPM != byte(800>>3) || st.Current != byte(800/64) {
		t.Fatalf("running status = %+v", st)
	}
	if v, w, ok := b.Setpoint(0); !ok || v != 800 || w != 2 {
		t.Fatalf("Setpoint = %d/%d/%v", v, w, ok)
	}

	if err := b.Tx(addr, []byte{0}, rd); err != nil {
		t.Fatal(err)
	}
	st, _ = blc.DecodeStatus(rd)
	if st.Code != blc.StatusV3FastReady || st.RPM != 0 {
		t.Fatalf("idle status = %+v", st)
	}
}

func TestBus_LegacyGenerationHasNoExtendedFields(t *testing.T) {
	b := New()
	c := b.Attach(0, blc.StatusRunning)
	if c.Status.Temperature != 0xFF || c.Status.VersionMajor != 0 {
		t.Fatalf("legacy controller = %+v", c.Status)
	}
	if b.Attach(blc.MaxMotors, blc.StatusV2Ready) != nil {
		t.Fatal("Attach out of range returned a controller")
	}
}

func TestBus_LogAndDetach(t *testing.T) {
	b := Populate(3, blc.StatusV2Ready)
	b.Keep = 2
	for slot := 0; slot < 3; slot++ {
		_ = b.Tx(uint16(blc.Address(slot)>>1), []byte{0}, nil)
	}
	log := b.Transactions()
	if len(log) != 2 || log[1].Addr != uint16(blc.Address(2)>>1) {
		t.Fatalf("log = %+v", log)
	}

	b.Detach(1)
	if _, _, ok := b.Setpoint(1); ok {
		t.Fatal("detached slot still reports a setpoint")
	}
	b.ResetLog()
	if len(b.Transactions()) != 0 {
		t.Fatal("ResetLog kept entries")
	}
}

func TestBus_DetectThroughDevice(t *testing.T) {
	b := Populate(3, blc.StatusV2Ready)
	b.Attach(5, blc.StatusV2Ready)
	d := blc.New(direct{b}, blc.FixedCount(3), blc.Config{})
	rep, err := d.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Present != 0b100111 || !rep.Errors.Has(blc.ErrorExtraMotor) || rep.Errors.Has(blc.ErrorMissingMotor) {
		t.Fatalf("report = %+v", rep)
	}
}

// direct adapts Bus to blc.Transport without a worker; async completes inline.
type direct struct{ b *Bus }

func (d direct) TxWait(addr uint8, w, r []byte) error { return d.b.Tx(uint16(addr>>1), w, r) }

func (d direct) TxAsync(addr uint8, w, r []byte, done func(error)) error {
	done(d.b.Tx(uint16(addr>>1), w, r))
	return nil
}

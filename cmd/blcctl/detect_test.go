package main

import (
	"strings"
	"testing"

	"blcbus-go/drivers/blc"
)

func TestDetectCommand_SimTable(t *testing.T) {
	o := BusOptions{Sim: true, SimGen: "v3", SimN: 3, Motors: 4}
	s, err := o.open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.close()

	dev := blc.New(s.owner, s.cfg.Motors, blc.Config{})
	rep, err := dev.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Present != 0b111 || !rep.Errors.Has(blc.ErrorMissingMotor) {
		t.Fatalf("report = %+v", rep)
	}

	out := slotTable(dev.Snapshot())
	if !strings.Contains(out, "v3_ready") || !strings.Contains(out, "0x56") {
		t.Fatalf("table missing rows:\n%s", out)
	}
	if sum := summary(rep); !strings.Contains(sum, "missing_motor") || !strings.Contains(sum, "v3") {
		t.Fatalf("summary = %q", sum)
	}
}

func TestBusOptions_Overrides(t *testing.T) {
	o := BusOptions{Sim: true, Bus: "7", Hz: 100_000, Motors: 2}
	cfg, err := o.load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bus.Name != "7" || cfg.Bus.Hz != 100_000 || cfg.Motors.Count != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}

	o = BusOptions{Sim: true, Motors: 999}
	if _, err := o.load(); err == nil {
		t.Fatal("expected validation error for motor count")
	}
}

//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"blcbus-go/bus"
	"blcbus-go/drivers/i2cowner"
	"blcbus-go/services/config"
	"blcbus-go/services/heartbeat"
	"blcbus-go/services/motors"
	"blcbus-go/types"
	"blcbus-go/x/mathx"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

const device = "pico"

// console mirrors log lines to UART0 for boards without USB attached.
type console struct{ u *uartx.UART }

func (c console) line(s string) {
	println(s)
	_, _ = c.u.Write([]byte(s))
	_, _ = c.u.Write([]byte("\r\n"))
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	con := console{u: uartx.UART0}
	_ = con.u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	con.line("[main] boot")

	cfg, err := config.ForDevice(device)
	if err != nil {
		con.line("[main] config: " + err.Error())
		return
	}

	hw := machine.I2C0
	if cfg.Bus.Name == "1" {
		hw = machine.I2C1
	}
	if err := hw.Configure(machine.I2CConfig{Frequency: cfg.Bus.Hz}); err != nil {
		con.line("[main] i2c configure: " + err.Error())
		return
	}
	owner := i2cowner.New(hw, i2cowner.Options{})

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, device)
	b := bus.NewBus(4)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	if err := motors.New(owner, cfg.Motors).Start(ctx, b.NewConnection("motors")); err != nil {
		con.line("[main] motors: " + err.Error())
		return
	}
	_ = (&heartbeat.Service{Interval: 5 * time.Second, Print: con.line}).Start(ctx, b.NewConnection("heartbeat"))

	// Bench mode: slot 0 follows a slow triangle once the bus is up.
	ui := b.NewConnection("ui")
	state := ui.Subscribe(motors.TopicState)
	for m := range state.Channel() {
		if st, ok := m.Payload.(types.MotorsState); ok && st.Link == types.LinkUp {
			break
		}
	}
	ui.Unsubscribe(state)
	con.line("[main] bus up, sweeping slot 0")

	v, step := 0, 16
	limit := int(cfg.Motors.MaxSetpoint / 4)
	tick := time.NewTicker(100 * time.Millisecond)
	for range tick.C {
		v += step
		if v >= limit || v <= 0 {
			step = -step
			v = mathx.Clamp(v, 0, limit)
		}
		ui.Publish(ui.NewMessage(motors.TopicControl(motors.VerbSetpoint), types.SetpointSet{Slot: 0, Value: uint16(v)}, false))
	}
}

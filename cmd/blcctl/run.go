package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"blcbus-go/bus"
	"blcbus-go/services/motors"
	"blcbus-go/types"
)

type RunCommand struct {
	BusOptions
	Slot     int           `long:"slot" short:"s" default:"0" description:"Motor slot (0-7)"`
	Value    uint16        `long:"value" short:"v" required:"true" description:"Setpoint, 0-2047"`
	Duration time.Duration `long:"for" default:"3s" description:"How long to hold the setpoint"`
}

func (c *RunCommand) Execute(args []string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	// The service outlives ctx; cancelling it sends the final zero cycle,
	// which must finish before the bus is closed.
	svcCtx, svcCancel := context.WithCancel(context.Background())
	defer svcCancel()

	b := bus.NewBus(16)
	conn := b.NewConnection("blcctl")
	svc := motors.New(s.owner, s.cfg.Motors)
	if err := svc.Start(svcCtx, b.NewConnection("motors")); err != nil {
		return err
	}
	defer func() {
		svcCancel()
		select {
		case <-svc.Done():
		case <-time.After(time.Second):
			log.Printf("motors service did not stop in time")
		}
	}()

	st, err := waitDetected(ctx, conn)
	if err != nil {
		return err
	}
	log.Printf("link %s, present %08b, reference %s", st.Link, st.Present, st.Reference)

	if err := request(ctx, conn, motors.VerbSetpoint, types.SetpointSet{Slot: c.Slot, Value: c.Value}); err != nil {
		return err
	}

	values := conn.Subscribe(motors.TopicValue(c.Slot))
	defer conn.Unsubscribe(values)
	report := time.NewTicker(500 * time.Millisecond)
	defer report.Stop()
	done := time.After(c.Duration)

	var last types.MotorValue
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case m := <-values.Channel():
			last = m.Payload.(types.MotorValue)
		case <-report.C:
			log.Printf("slot %d: %s setpoint %d rpm %d current %d.%d A",
				last.Slot, last.Code, last.Setpoint, last.RPM, last.DeciAmps/10, last.DeciAmps%10)
		}
	}
}

func waitDetected(ctx context.Context, conn *bus.Connection) (types.MotorsState, error) {
	sub := conn.Subscribe(motors.TopicState)
	defer conn.Unsubscribe(sub)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st := m.Payload.(types.MotorsState); st.Detected {
				return st, nil
			}
		case <-timeout:
			return types.MotorsState{}, fmt.Errorf("motors service did not report a detection")
		case <-ctx.Done():
			return types.MotorsState{}, ctx.Err()
		}
	}
}

func request(ctx context.Context, conn *bus.Connection, verb string, payload any) error {
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := conn.RequestWait(rctx, conn.NewMessage(motors.TopicControl(verb), payload, false))
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return fmt.Errorf("%s: %s", verb, e.Error)
	}
	return nil
}

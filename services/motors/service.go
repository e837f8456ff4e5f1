// Package motors runs a BLC motor bus: discovery, periodic setpoint
// transmission and telemetry, driven over the message bus.
package motors

import (
	"context"
	"time"

	"blcbus-go/bus"
	"blcbus-go/drivers/blc"
	"blcbus-go/errcode"
	"blcbus-go/services/config"
	"blcbus-go/types"
	"blcbus-go/x/conv"
	"blcbus-go/x/mathx"
	"blcbus-go/x/ramp"
	"blcbus-go/x/timex"
)

const (
	prefix = "motors"

	VerbSetpoint    = "setpoint"
	VerbStop        = "stop"
	VerbDetect      = "detect"
	VerbClearErrors = "clear_errors"
)

var (
	TopicState   = bus.T(prefix, "state")
	topicControl = bus.T(prefix, "control", "+")
)

// TopicControl is the request topic for verb.
func TopicControl(verb string) bus.Topic { return bus.T(prefix, "control", verb) }

// TopicValue is the retained telemetry topic for slot.
func TopicValue(slot int) bus.Topic { return bus.T(prefix, slot, "value") }

// Service owns one blc.Device. All device calls happen on the service loop.
type Service struct {
	dev     *blc.Device
	cfg     config.MotorsConfig
	targets [blc.MaxMotors]uint16

	lastCycles uint32
	done       chan struct{}
}

// New builds the service over tx with cfg (already validated and normalised).
func New(tx blc.Transport, cfg config.MotorsConfig) *Service {
	s := &Service{cfg: cfg}
	s.dev = blc.New(tx, s, blc.Config{StallTimeout: cfg.StallTimeout()})
	return s
}

// Device exposes the driver, mainly for tests and local tooling.
func (s *Service) Device() *blc.Device { return s.dev }

// ExpectedMotorCount implements blc.MotorCounter from the live config.
func (s *Service) ExpectedMotorCount() uint8 { return s.cfg.ExpectedMotorCount() }

// Start subscribes, then launches the service loop. Control requests
// published after Start returns are queued for the loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	cfgSub := conn.Subscribe(config.TopicMotors)
	ctlSub := conn.Subscribe(topicControl)
	s.done = make(chan struct{})
	go s.serviceLoop(ctx, conn, cfgSub, ctlSub)
	return nil
}

// Done is closed once the loop has exited, after the final stop cycle.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, cfgSub, ctlSub *bus.Subscription) {
	defer close(s.done)
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(ctlSub)

	if err := s.detect(ctx); err != nil {
		println("[motors] initial detect:", err.Error())
	}
	s.publishState(conn, "")

	tick := time.NewTicker(s.cfg.Period())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[motors] stopping")
			s.stop()
			s.flushStop()
			return

		case <-tick.C:
			s.cycle(conn)

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if s.applyConfig(msg.Payload) {
				tick.Reset(s.cfg.Period())
				s.publishState(conn, "")
			}

		case msg, ok := <-ctlSub.Channel():
			if !ok {
				return
			}
			s.handleControl(ctx, conn, msg)
		}
	}
}

// cycle publishes telemetry for a finished chain, then starts the next one.
func (s *Service) cycle(conn *bus.Connection) {
	if st := s.dev.Stats(); st.Cycles != s.lastCycles {
		s.lastCycles = st.Cycles
		s.publishValues(conn)
	}

	for slot := 0; slot < blc.MaxMotors; slot++ {
		cur, _ := s.dev.Setpoint(slot)
		if next := ramp.Toward(cur, s.targets[slot], s.cfg.SlewPerTick); next != cur {
			s.dev.SetSetpoint(slot, next)
		}
	}

	switch err := s.dev.TxSetpoints(); errcode.Of(err) {
	case errcode.OK, errcode.Busy, errcode.NotDetected:
		// busy: previous chain still running, try again next tick
	default:
		println("[motors] transmit:", err.Error())
		s.publishState(conn, err.Error())
	}
}

func (s *Service) applyConfig(payload any) bool {
	var mc config.MotorsConfig
	switch v := payload.(type) {
	case config.MotorsConfig:
		mc = v
	case *config.MotorsConfig:
		if v == nil {
			return false
		}
		mc = *v
	default:
		println("[motors] ignoring config payload of unexpected type")
		return false
	}
	doc := config.Config{Motors: mc}
	if err := config.Validate(&doc); err != nil {
		println("[motors] invalid config:", err.Error())
		return false
	}
	config.Normalize(&doc)
	if doc.Motors == s.cfg {
		return false
	}
	s.cfg = doc.Motors
	for slot := range s.targets {
		s.targets[slot] = mathx.Min(s.targets[slot], s.cfg.MaxSetpoint)
		if cur, _ := s.dev.Setpoint(slot); cur > s.cfg.MaxSetpoint {
			s.dev.SetSetpoint(slot, s.cfg.MaxSetpoint)
		}
	}
	return true
}

func (s *Service) handleControl(ctx context.Context, conn *bus.Connection, msg *bus.Message) {
	verb, _ := msg.Topic[len(msg.Topic)-1].(string)
	var err error
	switch verb {
	case VerbSetpoint:
		err = s.setpoint(msg.Payload)
	case VerbStop:
		s.stop()
	case VerbDetect:
		err = s.redetect(ctx)
		s.publishState(conn, "")
	case VerbClearErrors:
		s.dev.ClearErrors()
		s.publishState(conn, "")
	default:
		err = &errcode.E{C: errcode.InvalidParams, Op: "motors." + verb, Msg: "unknown verb"}
	}
	if err != nil {
		conn.Reply(msg, types.ErrorReply{OK: false, Error: string(errcode.Of(err))}, false)
		return
	}
	conn.Reply(msg, types.OKReply{OK: true}, false)
}

func (s *Service) setpoint(payload any) error {
	var cmd types.SetpointSet
	switch v := payload.(type) {
	case types.SetpointSet:
		cmd = v
	case *types.SetpointSet:
		if v == nil {
			return errcode.InvalidPayload
		}
		cmd = *v
	default:
		return errcode.InvalidPayload
	}
	if cmd.Slot < 0 || cmd.Slot >= blc.MaxMotors {
		return &errcode.E{C: errcode.InvalidParams, Op: "motors.setpoint", Msg: "slot out of range"}
	}
	v := mathx.Clamp(cmd.Value, 0, s.cfg.MaxSetpoint)
	s.targets[cmd.Slot] = v
	if s.cfg.SlewPerTick == 0 {
		s.dev.SetSetpoint(cmd.Slot, v)
	}
	return nil
}

// stop bypasses slew limiting.
func (s *Service) stop() {
	s.targets = [blc.MaxMotors]uint16{}
	s.dev.StopAll()
}

// flushStop transmits one all-zero cycle, bounded by two periods.
func (s *Service) flushStop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.Period())
	defer cancel()
	if err := s.dev.Wait(ctx); err != nil {
		return
	}
	if err := s.dev.TxSetpoints(); err != nil {
		return
	}
	_ = s.dev.Wait(ctx)
}

// redetect refuses while any motor is commanded.
func (s *Service) redetect(ctx context.Context) error {
	for _, v := range s.targets {
		if v != 0 {
			return &errcode.E{C: errcode.Busy, Op: "motors.detect", Msg: "motors commanded"}
		}
	}
	if s.dev.Commanded() {
		return &errcode.E{C: errcode.Busy, Op: "motors.detect", Msg: "motors commanded"}
	}
	return s.detect(ctx)
}

func (s *Service) detect(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, mathx.Max(s.cfg.StallTimeout(), 10*time.Millisecond))
	err := s.dev.Wait(wctx)
	cancel()
	if err != nil {
		return errcode.Wrap(errcode.Busy, "motors.detect", err)
	}
	rep, err := s.dev.Detect()
	if err != nil {
		return err
	}
	println("[motors] detect: present", rep.Present, "reference", rep.Reference.String(),
		"errors", uint8(rep.Errors))
	return nil
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

func linkOf(sn blc.Snapshot) types.Link {
	switch {
	case !sn.Detected || sn.Present == 0:
		return types.LinkDown
	case sn.Errors != 0:
		return types.LinkDegraded
	default:
		return types.LinkUp
	}
}

func (s *Service) publishState(conn *bus.Connection, errText string) {
	sn := s.dev.Snapshot()
	st := types.MotorsState{
		Link:      linkOf(sn),
		Detected:  sn.Detected,
		Present:   sn.Present,
		Expected:  sn.Expected,
		Motors:    sn.Motors,
		Reference: sn.Reference.String(),
		Width:     uint8(sn.Width),
		Features:  sn.Features.Names(),
		Errors:    sn.Errors.Names(),
		Stats: types.BusStats{
			Cycles:       sn.Stats.Cycles,
			Transactions: sn.Stats.Transactions,
			Failures:     sn.Stats.Failures,
			Stalls:       sn.Stats.Stalls,
			Busy:         sn.Stats.Busy,
		},
		TS:    timex.NowMs(),
		Error: errText,
	}
	conn.Publish(conn.NewMessage(TopicState, st, true))
}

func (s *Service) publishValues(conn *bus.Connection) {
	sn := s.dev.Snapshot()
	now := timex.NowMs()
	for slot := 0; slot < int(sn.Motors); slot++ {
		if !sn.IsPresent(slot) {
			continue
		}
		conn.Publish(conn.NewMessage(TopicValue(slot), valueOf(sn, slot, s.targets[slot], now), true))
	}
}

func valueOf(sn blc.Snapshot, slot int, target uint16, now int64) types.MotorValue {
	st := sn.Status[slot]
	v := types.MotorValue{
		Slot:      slot,
		Setpoint:  sn.Setpoints[slot],
		Target:    target,
		Code:      st.Code.String(),
		DeciAmps:  st.DeciAmps(),
		DeciVolts: st.DeciVolts(),
		RPM:       st.RPM,
		BusErrors: st.BusErrors,
		TS:        now,
	}
	if c, ok := st.TemperatureC(sn.Features); ok {
		v.TempC = &c
	}
	if mah, ok := st.Capacity(sn.Features); ok {
		v.CapacityMAh = &mah
	}
	if maj, minor, ok := st.Version(sn.Features); ok {
		var a, b [3]byte
		v.Version = string(conv.Utoa(a[:], uint64(maj))) + "." + string(conv.Utoa(b[:], uint64(minor)))
	}
	return v
}


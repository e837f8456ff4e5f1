// Package heartbeat prints a periodic one-line summary of the motor bus.
package heartbeat

import (
	"context"
	"time"

	"blcbus-go/bus"
	"blcbus-go/services/motors"
	"blcbus-go/types"
	"blcbus-go/x/conv"
)

type Service struct {
	// Interval defaults to one second.
	Interval time.Duration
	// Print receives each line; nil uses println.
	Print func(line string)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	stateSub := conn.Subscribe(motors.TopicState)
	defer conn.Unsubscribe(stateSub)

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	out := s.Print
	if out == nil {
		out = func(line string) { println(line) }
	}

	var (
		last  types.MotorsState
		seen  bool
		start = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			out("[heartbeat] stopping")
			return
		case <-tick.C:
			out(Line(last, seen, time.Since(start)))
		case msg, ok := <-stateSub.Channel():
			if !ok {
				return
			}
			if st, ok := msg.Payload.(types.MotorsState); ok {
				if seen && st.Link != last.Link {
					out("[heartbeat] link " + string(last.Link) + " -> " + string(st.Link))
				}
				last, seen = st, true
			}
		}
	}
}

// Line formats one summary without fmt.
func Line(st types.MotorsState, seen bool, up time.Duration) string {
	var buf [20]byte
	s := "[heartbeat] up " + string(conv.Utoa(buf[:], uint64(up/time.Second))) + "s"
	if !seen {
		return s + " motors: no state"
	}
	s += " link " + string(st.Link)
	s += " present 0x" + string(conv.U8Hex(buf[:], st.Present))
	s += " cycles " + string(conv.Utoa(buf[:], uint64(st.Stats.Cycles)))
	if st.Stats.Failures > 0 {
		s += " failures " + string(conv.Utoa(buf[:], uint64(st.Stats.Failures)))
	}
	for _, e := range st.Errors {
		s += " !" + e
	}
	return s
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

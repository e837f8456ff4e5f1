package bus

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"
)

type state struct{ present uint8 }

func recv(t *testing.T, s *Subscription) *Message {
	t.Helper()
	select {
	case m, ok := <-s.Channel():
		if !ok {
			t.Fatalf("%v: channel closed", s.Topic())
		}
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("%v: nothing delivered", s.Topic())
	}
	return nil
}

func quiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.Channel():
		t.Fatalf("%v: unexpected %v", s.Topic(), m.Topic)
	case <-time.After(30 * time.Millisecond):
	}
}

// topics collects n delivered topics as sorted strings.
func topics(t *testing.T, s *Subscription, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, recv(t, s).Topic.String())
	}
	sort.Strings(out)
	return out
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic Topic
		want           bool
	}{
		{T("motors", "state"), T("motors", "state"), true},
		{T("motors", "+", "value"), T("motors", 3, "value"), true},
		{T("motors", "+", "value"), T("motors", "state"), false},
		{T("motors", "+", "value"), T("motors", 3, "value", "raw"), false},
		{T("motors", "control", "+"), T("motors", "control", "stop"), true},
		{T("motors", "control", "+"), T("motors", "control"), false},
		{T("motors", "#"), T("motors"), true},
		{T("motors", "#"), T("motors", 0, "value"), true},
		{T("#"), T("config", "motors"), true},
		{T("config", "#"), T("motors", "state"), false},
		// slot tokens are ints; the string "3" is a different token
		{T("motors", 3, "value"), T("motors", "3", "value"), false},
	}
	for _, tc := range cases {
		t.Run(tc.pattern.String()+"~"+tc.topic.String(), func(t *testing.T) {
			b := NewBus(4)
			c := b.NewConnection("t")
			s := c.Subscribe(tc.pattern)
			c.Publish(c.NewMessage(tc.topic, state{}, false))
			if tc.want {
				recv(t, s)
			} else {
				quiet(t, s)
			}
		})
	}
}

func TestRetainedState_LateSubscriberGetsLatest(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("motors")
	svc.Publish(svc.NewMessage(T("motors", "state"), state{present: 1}, true))
	svc.Publish(svc.NewMessage(T("motors", "state"), state{present: 7}, true))

	ui := b.NewConnection("ui")
	s := ui.Subscribe(T("motors", "state"))
	if got := recv(t, s).Payload.(state); got.present != 7 {
		t.Fatalf("present = %d, want 7", got.present)
	}
	quiet(t, s)
}

func TestRetained_WildcardReplay(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("t")
	for _, tp := range []Topic{
		T("motors", 0, "value"),
		T("motors", 1, "value"),
		T("motors", "state"),
		T("config", "motors"),
	} {
		c.Publish(c.NewMessage(tp, state{}, true))
	}
	// a non-retained publish leaves nothing behind
	c.Publish(c.NewMessage(T("motors", 2, "value"), state{}, false))

	cases := []struct {
		pattern Topic
		want    []string
	}{
		{T("motors", "+", "value"), []string{"motors/0/value", "motors/1/value"}},
		{T("motors", "#"), []string{"motors/0/value", "motors/1/value", "motors/state"}},
		{T("#"), []string{"config/motors", "motors/0/value", "motors/1/value", "motors/state"}},
		{T("motors", 1, "+"), []string{"motors/1/value"}},
	}
	for _, tc := range cases {
		s := c.Subscribe(tc.pattern)
		got := topics(t, s, len(tc.want))
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%v: got %v, want %v", tc.pattern, got, tc.want)
			}
		}
		quiet(t, s)
		c.Unsubscribe(s)
	}
}

func TestRetained_NilPayloadClearsAndPrunes(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("t")
	c.Publish(c.NewMessage(T("motors", 1, "value"), state{}, true))
	c.Publish(c.NewMessage(T("motors", "state"), state{}, true))

	c.Publish(c.NewMessage(T("motors", 1, "value"), nil, true))

	s := c.Subscribe(T("motors", "#"))
	if m := recv(t, s); m.Topic.String() != "motors/state" {
		t.Fatalf("replayed %v after clear", m.Topic)
	}
	quiet(t, s)

	b.mu.Lock()
	_, left := b.kept.children["motors"].children[1]
	b.mu.Unlock()
	if left {
		t.Fatal("cleared slot still present in retained tree")
	}
}

func TestControl_RequestReply(t *testing.T) {
	b := NewBus(8)
	svc := b.NewConnection("motors")
	ctl := svc.Subscribe(T("motors", "control", "+"))
	defer svc.Unsubscribe(ctl)

	go func() {
		for m := range ctl.Channel() {
			verb, _ := m.Topic[len(m.Topic)-1].(string)
			svc.Reply(m, verb, false)
		}
	}()

	cli := b.NewConnection("cli")
	seen := map[string]bool{}
	for _, verb := range []string{"stop", "detect", "clear_errors"} {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		req := cli.NewMessage(T("motors", "control", verb), nil, false)
		reply, err := cli.RequestWait(ctx, req)
		cancel()
		if err != nil {
			t.Fatalf("%s: %v", verb, err)
		}
		if reply.Payload != verb {
			t.Fatalf("%s: reply %v", verb, reply.Payload)
		}
		if len(req.ReplyTo) != 3 || req.ReplyTo[0] != "_reply" || req.ReplyTo[1] != "cli" {
			t.Fatalf("%s: ReplyTo = %v", verb, req.ReplyTo)
		}
		key := req.ReplyTo.String()
		if seen[key] {
			t.Fatalf("ReplyTo %s reused", key)
		}
		seen[key] = true
	}
}

func TestRequestWait_NoResponder(t *testing.T) {
	b := NewBus(4)
	cli := b.NewConnection("cli")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cli.RequestWait(ctx, cli.NewMessage(T("motors", "control", "stop"), nil, false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline", err)
	}

	b.mu.Lock()
	_, left := b.subs.children["_reply"]
	b.mu.Unlock()
	if left {
		t.Fatal("reply subscription not removed")
	}
}

func TestReply_WithoutReplyToIsDropped(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("t")
	all := c.Subscribe(T("#"))
	c.Reply(c.NewMessage(T("motors", "control", "stop"), nil, false), "ok", false)
	c.Reply(nil, "ok", false)
	quiet(t, all)
}

func TestQueue_DropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("t")
	s := c.Subscribe(T("motors", "+", "value"))

	for i := 0; i < 5; i++ {
		c.Publish(c.NewMessage(T("motors", i, "value"), strconv.Itoa(i), false))
	}
	if x, y := recv(t, s).Payload, recv(t, s).Payload; x != "3" || y != "4" {
		t.Fatalf("kept %v, %v; want the newest two", x, y)
	}
}

func TestUnsubscribe_ClosesOnce(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("t")
	s := c.Subscribe(T("motors", "state"))
	s.Unsubscribe()
	s.Unsubscribe()

	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// must not reach the closed channel
	c.Publish(c.NewMessage(T("motors", "state"), state{}, false))
}

func TestDisconnect_ClosesAll(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("motors")
	s1 := c.Subscribe(T("motors", "control", "+"))
	s2 := c.Subscribe(T("config", "motors"))
	c.Disconnect()

	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatalf("subscription %v not closed", s.Topic())
		}
	}
}

func TestT_RejectsUnusableTokens(t *testing.T) {
	for _, tok := range []any{nil, []byte{1}, map[string]int{}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("T(%#v) did not panic", tok)
				}
			}()
			_ = T("motors", tok)
		}()
	}
	if got := T("motors", 3, "value").String(); got != "motors/3/value" {
		t.Fatalf("String = %q", got)
	}
}

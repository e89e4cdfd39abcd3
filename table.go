package hiredis

import (
	"strings"

	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/metrics"
)

// ReplyFunc receives the reply of an async command. err is set when the
// connection went away before the reply arrived.
type ReplyFunc func(v resp.Value, err error)

// ticket owns a callback until it is fired or cancelled. Standing tickets
// serve every message of a subscription.
type ticket struct {
	fn       ReplyFunc
	standing bool
	done     bool
}

func (t *ticket) fire(v resp.Value, err error) {
	if t.done || t.fn == nil {
		return
	}
	if !t.standing {
		t.done = true
	}
	t.fn(v, err)
}

func (t *ticket) cancel(err error) {
	if t.done {
		return
	}
	t.done = true
	if t.fn != nil {
		t.fn(resp.NilValue(), err)
	}
}

// table correlates inbound frames with the commands that caused them
type table struct {
	ordered  []*ticket
	channels map[string]*ticket
	patterns map[string]*ticket
	// one-shot callbacks of unsubscribe confirmations, "" stands for all
	unsubChannels map[string]*ticket
	unsubPatterns map[string]*ticket
	monitor       *ticket

	subscribed bool
	monitoring bool
	// replies owed to commands sent before the mode switch
	barrier int
	// subscribe confirmations not received yet
	inflight int
}

func newTable() *table {
	return &table{
		channels:      make(map[string]*ticket),
		patterns:      make(map[string]*ticket),
		unsubChannels: make(map[string]*ticket),
		unsubPatterns: make(map[string]*ticket),
	}
}

func (t *table) enterMode() {
	if !t.subscribed && !t.monitoring {
		t.barrier = len(t.ordered)
	}
}

func newTicket(fn ReplyFunc, standing bool) *ticket {
	if fn == nil {
		return nil
	}
	return &ticket{fn: fn, standing: standing}
}

// register records where the reply of a command goes. It runs before the
// command is written so a rejected command never reaches the wire.
func (t *table) register(name string, args [][]byte, fn ReplyFunc) error {
	switch strings.ToLower(name) {
	case "subscribe", "psubscribe":
		if len(args) != 1 {
			return ErrMultiTopic
		}
		t.enterMode()
		t.subscribed = true
		t.inflight++
		subs := t.channels
		if strings.ToLower(name) == "psubscribe" {
			subs = t.patterns
		}
		if tk := newTicket(fn, true); tk != nil {
			subs[string(args[0])] = tk
		} else {
			delete(subs, string(args[0]))
		}
		return nil
	case "unsubscribe", "punsubscribe":
		if len(args) > 1 {
			return ErrMultiTopic
		}
		if !t.subscribed {
			t.ordered = append(t.ordered, &ticket{fn: fn})
			return nil
		}
		subs, unsubs := t.channels, t.unsubChannels
		if strings.ToLower(name) == "punsubscribe" {
			subs, unsubs = t.patterns, t.unsubPatterns
		}
		key := ""
		if len(args) == 1 {
			key = string(args[0])
			delete(subs, key)
		} else {
			for k := range subs {
				delete(subs, k)
			}
		}
		if tk := newTicket(fn, false); tk != nil {
			unsubs[key] = tk
		}
		return nil
	case "monitor":
		t.enterMode()
		t.monitoring = true
		t.monitor = newTicket(fn, true)
		return nil
	}
	t.ordered = append(t.ordered, &ticket{fn: fn})
	return nil
}

func (t *table) popOrdered() *ticket {
	if len(t.ordered) == 0 {
		return nil
	}
	tk := t.ordered[0]
	t.ordered[0] = nil
	t.ordered = t.ordered[1:]
	if t.barrier > 0 {
		t.barrier--
	}
	return tk
}

// match finds the ticket of an inbound frame. A nil ticket, or one without a
// callback, means the reply is dropped, reason tells why.
func (t *table) match(v resp.Value) (*ticket, string) {
	if t.barrier > 0 {
		return t.orderedTicket()
	}
	if t.subscribed {
		if tk, ok := t.matchPubSub(v); ok {
			if tk == nil {
				return nil, metrics.DropNoTicket
			}
			return tk, ""
		}
		return t.orderedTicket()
	}
	if t.monitoring {
		if t.monitor == nil {
			return nil, metrics.DropNoTicket
		}
		return t.monitor, ""
	}
	return t.orderedTicket()
}

func (t *table) orderedTicket() (*ticket, string) {
	tk := t.popOrdered()
	if tk == nil {
		return nil, metrics.DropNoTicket
	}
	if tk.fn == nil {
		return nil, metrics.DropNoCallback
	}
	return tk, ""
}

// matchPubSub reports ok for frames of the pub/sub protocol and returns the
// ticket registered for them, if any
func (t *table) matchPubSub(v resp.Value) (*ticket, bool) {
	if v.Kind != resp.KindArray || len(v.Elems) < 3 {
		return nil, false
	}
	kind, ok := v.Elems[0].Text()
	if !ok {
		return nil, false
	}
	target, _ := v.Elems[1].Text()

	switch strings.ToLower(kind) {
	case "message":
		return t.channels[target], true
	case "pmessage":
		if len(v.Elems) != 4 {
			return nil, false
		}
		return t.patterns[target], true
	case "subscribe":
		t.confirmed()
		return t.channels[target], true
	case "psubscribe":
		t.confirmed()
		return t.patterns[target], true
	case "unsubscribe":
		return t.unsubscribed(t.unsubChannels, target, v.Elems[2]), true
	case "punsubscribe":
		return t.unsubscribed(t.unsubPatterns, target, v.Elems[2]), true
	}
	return nil, false
}

func (t *table) confirmed() {
	if t.inflight > 0 {
		t.inflight--
	}
}

func (t *table) unsubscribed(unsubs map[string]*ticket, target string, remain resp.Value) *ticket {
	tk, ok := unsubs[target]
	if ok {
		delete(unsubs, target)
	} else if tk, ok = unsubs[""]; ok {
		delete(unsubs, "")
	}
	if remain.Kind == resp.KindInteger && remain.Int == 0 && t.inflight == 0 {
		t.subscribed = false
		for k := range t.channels {
			delete(t.channels, k)
		}
		for k := range t.patterns {
			delete(t.patterns, k)
		}
	}
	return tk
}

// cancelAll fails every outstanding ticket with err, each once, and empties the
// table. Cancelled tickets are counted as dropped.
func (t *table) cancelAll(err error) {
	var tickets []*ticket
	tickets = append(tickets, t.ordered...)
	for _, m := range []map[string]*ticket{t.channels, t.patterns, t.unsubChannels, t.unsubPatterns} {
		for _, tk := range m {
			tickets = append(tickets, tk)
		}
	}
	if t.monitor != nil {
		tickets = append(tickets, t.monitor)
	}
	*t = *newTable()
	if len(tickets) > 0 {
		metrics.GetMetrics().DroppedReplyCounterVec.WithLabelValues(metrics.DropCancelled).Add(float64(len(tickets)))
	}
	for _, tk := range tickets {
		tk.cancel(err)
	}
}

// idle reports no reply is owed to an ordered command
func (t *table) idle() bool {
	return len(t.ordered) == 0
}

package comm

import (
	"reflect"
	"sync"

	"github.com/unixpickle/essentials"
)

// AnySource may be passed as the source of a receive to
// accept a message from any rank.
const AnySource = -1

// AnyTag may be passed as the tag of a receive to accept
// a message with any tag.
const AnyTag = -1

// A msgContext keeps user traffic and collective traffic
// from ever matching each other.
type msgContext int

const (
	p2pContext msgContext = iota
	collContext
)

// An envelope is a message plus its routing header.
type envelope struct {
	ctx  msgContext
	src  int
	dst  int
	tag  int
	data interface{}

	// onDeliver, if set, is called once the message has
	// reached the destination's mailbox or has been lost.
	onDeliver func(err error)
}

// A mailbox matches incoming envelopes against posted
// receives.
//
// Messages that arrive before a matching receive is posted
// wait in unexpected, in arrival order.
// Receives that are posted before a matching message
// arrives wait in posted, in posting order.
type mailbox struct {
	lock       sync.Mutex
	unexpected []*envelope
	posted     []*Request
	closed     bool
}

func (m *mailbox) deliver(env *envelope) error {
	var completed *Request
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return ErrClosedChannel
	}
	consumed := false
	for i, req := range m.posted {
		if req.matches(env) {
			essentials.OrderedDelete(&m.posted, i)
			// A failed receive leaves the message queued
			// for another attempt.
			consumed = req.accept(env)
			completed = req
			break
		}
	}
	if !consumed {
		m.unexpected = append(m.unexpected, env)
	}
	m.lock.Unlock()

	if completed != nil {
		completed.signal()
	}
	if env.onDeliver != nil {
		env.onDeliver(nil)
	}
	return nil
}

func (m *mailbox) post(req *Request) {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		req.fail(ErrClosedChannel)
		req.signal()
		return
	}
	for i, env := range m.unexpected {
		if !req.matches(env) {
			continue
		}
		if req.accept(env) {
			essentials.OrderedDelete(&m.unexpected, i)
		}
		m.lock.Unlock()
		req.signal()
		return
	}
	m.posted = append(m.posted, req)
	m.lock.Unlock()
}

// close fails every posted receive, and every receive
// posted in the future.
func (m *mailbox) close() {
	m.lock.Lock()
	m.closed = true
	posted := m.posted
	m.posted = nil
	m.unexpected = nil
	m.lock.Unlock()
	for _, req := range posted {
		req.fail(ErrClosedChannel)
		req.signal()
	}
}

// countOf returns the number of elements in a message.
func countOf(data interface{}) int {
	if data == nil {
		return 0
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Len()
	}
	return 1
}

// Package channel implements point-to-point links between
// exactly two endpoints.
//
// A Channel is simplex: one SendEnd feeds one RecvEnd.
// Messages keep their boundaries and arrive in the order
// they were sent.
// Duplex links are two Channels bundled together.
package channel

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/unixpickle/essentials"
)

// AnyTag may be passed to Recv to accept a message with
// any tag.
const AnyTag = -1

// ErrClosed is returned when sending on a closed Channel,
// or receiving from a closed Channel with no matching
// buffered messages.
var ErrClosed = errors.New("channel: closed channel")

// A Message is a unit of data passed through a Channel.
type Message struct {
	Tag     int
	Payload interface{}
}

// An Option configures a Channel.
type Option func(c *Channel)

// WithCapacity bounds the number of buffered messages.
//
// When the buffer is full, Send blocks until a message is
// received or the Channel is closed.
// A capacity of 0 means the buffer is unbounded.
func WithCapacity(n int) Option {
	if n < 0 {
		panic("negative channel capacity")
	}
	return func(c *Channel) {
		c.capacity = n
	}
}

// A Channel is a uni-directional FIFO link.
type Channel struct {
	lock     sync.Mutex
	cond     *sync.Cond
	pending  []Message
	capacity int
	closed   bool

	endsTaken bool
	sendEnd   *SendEnd
	recvEnd   *RecvEnd
}

// New creates an open Channel.
func New(opts ...Option) *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.lock)
	for _, opt := range opts {
		opt(c)
	}
	c.sendEnd = &SendEnd{ch: c}
	c.recvEnd = &RecvEnd{ch: c}
	return c
}

// Ends hands out the two ends of the Channel.
//
// Each end must be owned by exactly one worker, so Ends
// may only be called once.
func (c *Channel) Ends() (*SendEnd, *RecvEnd) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.endsTaken {
		panic("channel ends were already handed out")
	}
	c.endsTaken = true
	return c.sendEnd, c.recvEnd
}

// Close closes the Channel.
//
// Buffered messages may still be received after a close.
// Closing an already-closed Channel has no effect.
func (c *Channel) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.closed {
		c.closed = true
		c.cond.Broadcast()
	}
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// Pending returns the number of buffered messages.
func (c *Channel) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.pending)
}

func (c *Channel) send(msg Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for !c.closed && c.capacity > 0 && len(c.pending) >= c.capacity {
		c.cond.Wait()
	}
	if c.closed {
		return ErrClosed
	}
	c.pending = append(c.pending, msg)
	c.cond.Broadcast()
	return nil
}

func (c *Channel) recv(tag int) (Message, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for {
		for i, msg := range c.pending {
			if tag == AnyTag || msg.Tag == tag {
				essentials.OrderedDelete(&c.pending, i)
				c.cond.Broadcast()
				return msg, nil
			}
		}
		if c.closed {
			return Message{}, ErrClosed
		}
		c.cond.Wait()
	}
}

// A SendEnd is the writing side of a Channel.
type SendEnd struct {
	ch    *Channel
	inUse int32
}

// Send enqueues a message for the RecvEnd.
//
// Send only blocks if the Channel has a bounded capacity
// and its buffer is full.
// Concurrent calls to Send on one SendEnd panic.
func (s *SendEnd) Send(msg Message) error {
	if !atomic.CompareAndSwapInt32(&s.inUse, 0, 1) {
		panic("concurrent use of channel send end")
	}
	defer atomic.StoreInt32(&s.inUse, 0)
	return s.ch.send(msg)
}

// Close closes the underlying Channel.
func (s *SendEnd) Close() {
	s.ch.Close()
}

// Channel returns the Channel this end belongs to.
func (s *SendEnd) Channel() *Channel {
	return s.ch
}

// A RecvEnd is the reading side of a Channel.
type RecvEnd struct {
	ch    *Channel
	inUse int32
}

// Recv blocks until a message with the given tag is
// available and removes it from the Channel.
//
// If tag is AnyTag, the earliest-sent message is returned.
// Otherwise, the earliest-sent message with the tag is
// returned, and messages with other tags stay buffered.
func (r *RecvEnd) Recv(tag int) (Message, error) {
	if !atomic.CompareAndSwapInt32(&r.inUse, 0, 1) {
		panic("concurrent use of channel receive end")
	}
	defer atomic.StoreInt32(&r.inUse, 0)
	return r.ch.recv(tag)
}

// Close closes the underlying Channel.
func (r *RecvEnd) Close() {
	r.ch.Close()
}

// Channel returns the Channel this end belongs to.
func (r *RecvEnd) Channel() *Channel {
	return r.ch
}

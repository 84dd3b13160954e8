package comm

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Status describes a completed transfer.
type Status struct {
	// Source is the rank that sent the message.
	Source int

	// Tag is the tag the message was sent with.
	Tag int

	// Count is the number of elements in the message: the
	// length of a slice, or 1 for any other value.
	Count int
}

// A Request is a handle on an in-flight send or receive.
//
// A Request is pending until the transfer completes.
// It must be waited on (or observed complete with Test)
// before it is freed.
type Request struct {
	isRecv bool
	ctx    msgContext
	source int
	tag    int

	// accepter, if set, turns a matched message into the
	// receive's result.
	// If it fails, the message is not consumed.
	accepter func(env *envelope) (interface{}, Status, error)

	done      chan struct{}
	lock      sync.Mutex
	completed bool
	freed     bool

	status Status
	data   interface{}
	err    error
}

func newRequest(isRecv bool) *Request {
	return &Request{isRecv: isRecv, done: make(chan struct{})}
}

// Wait blocks until the Request completes.
//
// For receives, the Status describes the message that was
// received.
func (r *Request) Wait() (Status, error) {
	<-r.done
	return r.status, r.err
}

// Test checks if the Request has completed without
// blocking.
func (r *Request) Test() (bool, Status, error) {
	select {
	case <-r.done:
		return true, r.status, r.err
	default:
		return false, Status{}, nil
	}
}

// Data returns the payload of a completed receive.
//
// It returns nil for sends, failed receives, and pending
// requests.
func (r *Request) Data() interface{} {
	select {
	case <-r.done:
		return r.data
	default:
		return nil
	}
}

// Done returns a channel that is closed when the Request
// completes.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Free releases the Request.
//
// Freeing a pending Request is a programming error and
// panics, since the transfer may still reference the
// caller's memory.
// Freeing a Request a second time has no effect.
func (r *Request) Free() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.freed {
		return
	}
	if !r.completed {
		panic("comm: request freed before completion")
	}
	r.freed = true
}

func (r *Request) matches(env *envelope) bool {
	return env.ctx == r.ctx &&
		(r.source == AnySource || env.src == r.source) &&
		(r.tag == AnyTag || env.tag == r.tag)
}

// accept records the result of matching env.
// It reports whether env was consumed.
func (r *Request) accept(env *envelope) bool {
	if r.accepter == nil {
		r.data = env.data
		r.status = Status{Source: env.src, Tag: env.tag, Count: countOf(env.data)}
		return true
	}
	data, status, err := r.accepter(env)
	if err != nil {
		r.err = err
		return false
	}
	r.data = data
	r.status = status
	return true
}

func (r *Request) fail(err error) {
	r.err = err
}

// signal marks the Request as completed.
func (r *Request) signal() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.completed {
		r.completed = true
		close(r.done)
	}
}

// WaitAll blocks until every Request has completed, in any
// order.
//
// The returned statuses line up with reqs.
// The error joins the errors of every failed Request.
func WaitAll(reqs ...*Request) ([]Status, error) {
	statuses := make([]Status, len(reqs))
	var errs []error
	for i, req := range reqs {
		status, err := req.Wait()
		statuses[i] = status
		if err != nil {
			errs = append(errs, fmt.Errorf("request %d: %w", i, err))
		}
	}
	return statuses, errors.Join(errs...)
}

// WaitAny blocks until one of the Requests completes and
// returns its index.
func WaitAny(reqs ...*Request) (int, Status, error) {
	if len(reqs) == 0 {
		panic("comm: WaitAny needs at least one request")
	}
	cases := make([]reflect.SelectCase, len(reqs))
	for i, req := range reqs {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(req.done)}
	}
	idx, _, _ := reflect.Select(cases)
	status, err := reqs[idx].Wait()
	return idx, status, err
}

package comm

import (
	"fmt"
	"slices"
)

// Send transmits data to the destination rank with the
// given tag.
//
// Send returns once the communicator has taken ownership
// of data, which may be before the destination has posted
// a matching receive.
// The data is moved, not copied, so the caller must not
// modify it afterwards; use SendBuf for buffers that will
// be reused.
// A rank may send to itself.
func (c *Comm) Send(data interface{}, dest, tag int) error {
	if err := c.checkSend(dest, tag); err != nil {
		return err
	}
	return c.route(p2pContext, data, dest, tag, nil)
}

// Isend is like Send, but it returns a Request that
// completes once the message has reached the destination
// rank.
func (c *Comm) Isend(data interface{}, dest, tag int) (*Request, error) {
	if err := c.checkSend(dest, tag); err != nil {
		return nil, err
	}
	req := newRequest(false)
	req.status = Status{Source: c.rank, Tag: tag, Count: countOf(data)}
	err := c.route(p2pContext, data, dest, tag, func(err error) {
		if err != nil {
			req.fail(err)
		}
		req.signal()
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Recv blocks until a matching message arrives and returns
// its payload.
//
// The source may be AnySource and the tag may be AnyTag.
// Among the matching messages, the earliest one sent wins.
func (c *Comm) Recv(source, tag int) (interface{}, Status, error) {
	req, err := c.Irecv(source, tag)
	if err != nil {
		return nil, Status{}, err
	}
	status, err := req.Wait()
	return req.Data(), status, err
}

// Irecv posts a receive and returns without blocking.
// The payload is available from Request.Data once the
// Request completes.
//
// Receives are matched in the order they are posted.
func (c *Comm) Irecv(source, tag int) (*Request, error) {
	if err := c.checkRecv(source, tag); err != nil {
		return nil, err
	}
	return c.post(p2pContext, source, tag, nil), nil
}

// SendRecv sends one message and receives another as a
// single step that can not deadlock against a peer doing
// the same.
func (c *Comm) SendRecv(sendData interface{}, dest, sendTag, source,
	recvTag int) (interface{}, Status, error) {
	if err := c.checkSend(dest, sendTag); err != nil {
		return nil, Status{}, err
	}
	req, err := c.Irecv(source, recvTag)
	if err != nil {
		return nil, Status{}, err
	}
	if err := c.route(p2pContext, sendData, dest, sendTag, nil); err != nil {
		return nil, Status{}, err
	}
	status, err := req.Wait()
	return req.Data(), status, err
}

// SendBuf sends a copy of buf, so the caller may reuse buf
// as soon as SendBuf returns.
func SendBuf[T any](c *Comm, buf []T, dest, tag int) error {
	return c.Send(slices.Clone(buf), dest, tag)
}

// IsendBuf is the non-blocking version of SendBuf.
func IsendBuf[T any](c *Comm, buf []T, dest, tag int) (*Request, error) {
	return c.Isend(slices.Clone(buf), dest, tag)
}

// RecvBuf receives a []T message into buf.
//
// If the message is longer than buf, RecvBuf fails with a
// *BufferTooSmallError and the message stays queued.
// The Status's Count is the number of elements written.
func RecvBuf[T any](c *Comm, buf []T, source, tag int) (Status, error) {
	req, err := IrecvBuf(c, buf, source, tag)
	if err != nil {
		return Status{}, err
	}
	return req.Wait()
}

// IrecvBuf is the non-blocking version of RecvBuf.
//
// The caller must not touch buf until the Request has
// completed.
func IrecvBuf[T any](c *Comm, buf []T, source, tag int) (*Request, error) {
	if err := c.checkRecv(source, tag); err != nil {
		return nil, err
	}
	accepter := func(env *envelope) (interface{}, Status, error) {
		data, ok := env.data.([]T)
		if !ok {
			return nil, Status{}, fmt.Errorf("%w: expected %T but got %T", ErrTypeMismatch,
				buf, env.data)
		}
		if len(data) > len(buf) {
			return nil, Status{}, &BufferTooSmallError{Need: len(data), Have: len(buf)}
		}
		n := copy(buf, data)
		return buf[:n], Status{Source: env.src, Tag: env.tag, Count: n}, nil
	}
	return c.post(p2pContext, source, tag, accepter), nil
}

func (c *Comm) route(ctx msgContext, data interface{}, dest, tag int,
	onDeliver func(err error)) error {
	return c.router().originate(&envelope{
		ctx:       ctx,
		src:       c.rank,
		dst:       dest,
		tag:       tag,
		data:      data,
		onDeliver: onDeliver,
	})
}

func (c *Comm) post(ctx msgContext, source, tag int,
	accepter func(env *envelope) (interface{}, Status, error)) *Request {
	req := newRequest(true)
	req.ctx = ctx
	req.source = source
	req.tag = tag
	req.accepter = accepter
	c.router().box.post(req)
	return req
}

func (c *Comm) checkSend(dest, tag int) error {
	if err := c.checkRank(dest); err != nil {
		return err
	}
	if tag < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
	return nil
}

func (c *Comm) checkRecv(source, tag int) error {
	if source != AnySource {
		if err := c.checkRank(source); err != nil {
			return err
		}
	} else if err := c.checkValid(); err != nil {
		return err
	}
	if tag < 0 && tag != AnyTag {
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
	return nil
}

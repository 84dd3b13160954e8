package comm

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned for layouts with negative
// offsets or lengths, no elements, or a non-positive
// extent.
var ErrInvalidLayout = errors.New("comm: invalid layout")

// A Block is a run of consecutive elements.
type Block struct {
	Offset int
	Length int
}

// A Layout picks elements out of a buffer that stores a
// sequence of items.
//
// Item k consists of the Blocks, shifted by k*Extent
// elements.
// Elements are transferred in item order, and in block
// order within an item.
type Layout struct {
	Blocks []Block
	Extent int
}

// Contiguous creates a Layout whose items are n
// consecutive elements.
func Contiguous(n int) Layout {
	return Layout{Blocks: []Block{{Offset: 0, Length: n}}, Extent: n}
}

// Vector creates a Layout whose items are count blocks of
// blockLength elements, each block starting stride
// elements after the previous one.
func Vector(count, blockLength, stride int) Layout {
	blocks := make([]Block, count)
	for i := range blocks {
		blocks[i] = Block{Offset: i * stride, Length: blockLength}
	}
	l := Layout{Blocks: blocks}
	l.Extent = l.end()
	return l
}

// Indexed creates a Layout from parallel lists of block
// lengths and offsets.
func Indexed(lengths, offsets []int) Layout {
	if len(lengths) != len(offsets) {
		panic("mismatched lengths and offsets")
	}
	blocks := make([]Block, len(lengths))
	for i, length := range lengths {
		blocks[i] = Block{Offset: offsets[i], Length: length}
	}
	l := Layout{Blocks: blocks}
	l.Extent = l.end()
	return l
}

// Resized returns a copy of the Layout with a different
// extent.
//
// Resizing lets consecutive items skip elements, as in
// picking two fields out of every three-element row, or
// overlap, as in walking a matrix by columns.
func (l Layout) Resized(extent int) Layout {
	return Layout{Blocks: append([]Block{}, l.Blocks...), Extent: extent}
}

// Repeat returns a Layout whose items are count items of
// l.
func (l Layout) Repeat(count int) Layout {
	var blocks []Block
	for k := 0; k < count; k++ {
		for _, b := range l.Blocks {
			blocks = append(blocks, Block{Offset: b.Offset + k*l.Extent, Length: b.Length})
		}
	}
	return Layout{Blocks: blocks, Extent: count * l.Extent}
}

// Elements returns the number of elements in one item.
func (l Layout) Elements() int {
	var n int
	for _, b := range l.Blocks {
		n += b.Length
	}
	return n
}

// Span returns the buffer length needed to hold count
// items.
func (l Layout) Span(count int) int {
	if count == 0 {
		return 0
	}
	return (count-1)*l.Extent + l.end()
}

// Validate checks that the Layout can be used for a
// transfer.
func (l Layout) Validate() error {
	if l.Extent < 1 {
		return fmt.Errorf("%w: extent %d", ErrInvalidLayout, l.Extent)
	}
	for _, b := range l.Blocks {
		if b.Offset < 0 || b.Length < 0 {
			return fmt.Errorf("%w: block %+v", ErrInvalidLayout, b)
		}
	}
	if l.Elements() == 0 {
		return fmt.Errorf("%w: no elements", ErrInvalidLayout)
	}
	return nil
}

func (l Layout) end() int {
	var end int
	for _, b := range l.Blocks {
		end = max(end, b.Offset+b.Length)
	}
	return end
}

// pack copies the selected elements of count items into a
// new dense slice.
func pack[T any](buf []T, l Layout, count int) []T {
	res := make([]T, 0, l.Elements()*count)
	for k := 0; k < count; k++ {
		base := k * l.Extent
		for _, b := range l.Blocks {
			res = append(res, buf[base+b.Offset:base+b.Offset+b.Length]...)
		}
	}
	return res
}

// unpack scatters data into the selected elements of buf,
// stopping when data runs out.
func unpack[T any](data, buf []T, l Layout, count int) {
	for k := 0; k < count && len(data) > 0; k++ {
		base := k * l.Extent
		for _, b := range l.Blocks {
			n := copy(buf[base+b.Offset:base+b.Offset+b.Length], data)
			data = data[n:]
		}
	}
}

func checkLayout(bufLen int, l Layout, count int) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidLayout, count)
	}
	if span := l.Span(count); span > bufLen {
		return &BufferTooSmallError{Need: span, Have: bufLen}
	}
	return nil
}

// SendLayout sends the elements that count items of l
// select from buf, packed densely.
//
// The receiver may use RecvBuf, or RecvLayout with a
// different Layout of the same size.
func SendLayout[T any](c *Comm, buf []T, l Layout, count, dest, tag int) error {
	if err := checkLayout(len(buf), l, count); err != nil {
		return err
	}
	return c.Send(pack(buf, l, count), dest, tag)
}

// IsendLayout is the non-blocking version of SendLayout.
func IsendLayout[T any](c *Comm, buf []T, l Layout, count, dest, tag int) (*Request, error) {
	if err := checkLayout(len(buf), l, count); err != nil {
		return nil, err
	}
	return c.Isend(pack(buf, l, count), dest, tag)
}

// RecvLayout receives a []T message into the elements
// that count items of l select from buf.
//
// Elements outside the Layout are left untouched.
// If the message has more elements than the Layout
// selects, RecvLayout fails with a *BufferTooSmallError
// and the message stays queued.
// The Status's Count is the number of elements written.
func RecvLayout[T any](c *Comm, buf []T, l Layout, count, source, tag int) (Status, error) {
	req, err := IrecvLayout(c, buf, l, count, source, tag)
	if err != nil {
		return Status{}, err
	}
	return req.Wait()
}

// IrecvLayout is the non-blocking version of RecvLayout.
func IrecvLayout[T any](c *Comm, buf []T, l Layout, count, source, tag int) (*Request, error) {
	if err := c.checkRecv(source, tag); err != nil {
		return nil, err
	}
	if err := checkLayout(len(buf), l, count); err != nil {
		return nil, err
	}
	capacity := l.Elements() * count
	accepter := func(env *envelope) (interface{}, Status, error) {
		data, ok := env.data.([]T)
		if !ok {
			return nil, Status{}, fmt.Errorf("%w: expected %T but got %T", ErrTypeMismatch,
				buf, env.data)
		}
		if len(data) > capacity {
			return nil, Status{}, &BufferTooSmallError{Need: len(data), Have: capacity}
		}
		unpack(data, buf, l, count)
		return buf, Status{Source: env.src, Tag: env.tag, Count: len(data)}, nil
	}
	return c.post(p2pContext, source, tag, accepter), nil
}

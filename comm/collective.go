package comm

import (
	"fmt"
	"slices"

	"github.com/unixpickle/mpcomm/topology"
)

type collOp int

const (
	opBarrier collOp = iota
	opBcast
	opGather
	opScatter
	opReduce
	opAllToAll
	opSplit
	opSubgroup
	opDup
)

var collOpNames = map[collOp]string{
	opBarrier:  "barrier",
	opBcast:    "broadcast",
	opGather:   "gather",
	opScatter:  "scatter",
	opReduce:   "reduce",
	opAllToAll: "all-to-all",
	opSplit:    "split",
	opSubgroup: "create-subgroup",
	opDup:      "dup",
}

// A frame is the payload of every collective message.
//
// Besides the data, it names the collective and its
// parameters, so that a rank can tell when a peer is
// running a different collective.
type frame struct {
	op     collOp
	root   int
	detail string

	// abort is set when the sender hit a usage error and
	// has no data to send.
	abort error
	value interface{}
}

func (f *frame) describe() string {
	res := fmt.Sprintf("%s(root=%d", collOpNames[f.op], f.root)
	if f.detail != "" {
		res += ", " + f.detail
	}
	return res + ")"
}

func (c *Comm) collSend(dest int, template *frame, value interface{}) error {
	f := *template
	f.value = value
	return c.route(collContext, &f, dest, int(f.op), nil)
}

func (c *Comm) collAbort(dest int, template *frame, err error) error {
	f := *template
	f.abort = err
	return c.route(collContext, &f, dest, int(f.op), nil)
}

// collRecv receives the next collective frame from source
// and checks that it belongs to the expected collective.
func (c *Comm) collRecv(source int, want *frame) (*frame, error) {
	req := c.post(collContext, source, AnyTag, nil)
	if _, err := req.Wait(); err != nil {
		return nil, err
	}
	got := req.Data().(*frame)
	if got.op != want.op || got.root != want.root || got.detail != want.detail {
		return nil, &MismatchError{Peer: source, Want: want.describe(), Got: got.describe()}
	}
	if got.abort != nil {
		return nil, fmt.Errorf("%s aborted by rank %d: %w", collOpNames[got.op], source, got.abort)
	}
	return got, nil
}

// collSendRecv exchanges frames with two peers without
// risking a deadlock.
func (c *Comm) collSendRecv(dest int, out *frame, source int, want *frame) (*frame, error) {
	req := c.post(collContext, source, AnyTag, nil)
	if err := c.route(collContext, out, dest, int(out.op), nil); err != nil {
		return nil, err
	}
	if _, err := req.Wait(); err != nil {
		return nil, err
	}
	got := req.Data().(*frame)
	if got.op != want.op || got.root != want.root {
		return nil, &MismatchError{Peer: source, Want: want.describe(), Got: got.describe()}
	}
	return got, nil
}

func frameValue[T any](f *frame, source int) (T, error) {
	if f.value == nil {
		// A nil interface value.
		var zero T
		return zero, nil
	}
	value, ok := f.value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: expected %T from rank %d but got %T", ErrTypeMismatch,
			zero, source, f.value)
	}
	return value, nil
}

// Barrier blocks until every member has entered Barrier.
//
// It uses a dissemination pattern: in round k, every rank
// signals the rank 2^k ahead of it and waits for the rank
// 2^k behind it.
func (c *Comm) Barrier() error {
	if err := c.checkValid(); err != nil {
		return err
	}
	n := c.Size()
	for dist := 1; dist < n; dist *= 2 {
		f := &frame{op: opBarrier, root: -1, detail: fmt.Sprintf("distance=%d", dist)}
		if err := c.collSend((c.rank+dist)%n, f, nil); err != nil {
			return err
		}
		if _, err := c.collRecv((c.rank-dist+n)%n, f); err != nil {
			return err
		}
	}
	return nil
}

// Bcast sends the root's value to every member.
//
// Every member returns the root's value; values passed by
// other members are ignored.
// Slices of basic types are copied for each member; other
// values are shared, and should be treated as read-only.
func Bcast[T any](c *Comm, value T, root int) (T, error) {
	var zero T
	if err := c.checkRank(root); err != nil {
		return zero, err
	}
	n := c.Size()
	if n == 1 {
		return value, nil
	}
	f := &frame{op: opBcast, root: root}
	switch c.fab.algorithms.Bcast {
	case Linear:
		if c.rank == root {
			for i := 0; i < n; i++ {
				if i != root {
					if err := c.collSend(i, f, cloneValue(value)); err != nil {
						return zero, err
					}
				}
			}
			return value, nil
		}
		return recvValue[T](c, root, f)
	case Ring:
		rel := (c.rank - root + n) % n
		if rel != 0 {
			var err error
			value, err = recvValue[T](c, (c.rank-1+n)%n, f)
			if err != nil {
				return zero, err
			}
		}
		if rel != n-1 {
			if err := c.collSend((c.rank+1)%n, f, cloneValue(value)); err != nil {
				return zero, err
			}
		}
		return value, nil
	default:
		rel := (c.rank - root + n) % n
		if rel != 0 {
			parent := (topology.TreeParent(rel) + root) % n
			var err error
			value, err = recvValue[T](c, parent, f)
			if err != nil {
				return zero, err
			}
		}
		for _, child := range topology.TreeChildren(rel, n) {
			if err := c.collSend((child+root)%n, f, cloneValue(value)); err != nil {
				return zero, err
			}
		}
		return value, nil
	}
}

// Gather collects one value from every member at the root.
//
// The root receives the values ordered by rank; other
// members receive nil.
func Gather[T any](c *Comm, value T, root int) ([]T, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	f := &frame{op: opGather, root: root}
	if c.rank != root {
		return nil, c.collSend(root, f, value)
	}
	res := make([]T, c.Size())
	for i := range res {
		if i == root {
			res[i] = value
			continue
		}
		v, err := recvValue[T](c, i, f)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

// AllGather is like Gather, but every member receives the
// ordered values.
func AllGather[T any](c *Comm, value T) ([]T, error) {
	gathered, err := Gather(c, value, 0)
	if err != nil {
		return nil, err
	}
	res, err := Bcast(c, gathered, 0)
	if err != nil {
		return nil, err
	}
	if c.rank != 0 {
		res = slices.Clone(res)
	}
	return res, nil
}

// Scatter sends items[i] from the root to member i.
//
// Only the root's items are used; they must contain
// exactly one item per member, or every member fails with
// ErrSizeMismatch.
func Scatter[T any](c *Comm, items []T, root int) (T, error) {
	var zero T
	if err := c.checkRank(root); err != nil {
		return zero, err
	}
	f := &frame{op: opScatter, root: root}
	if c.rank != root {
		return recvValue[T](c, root, f)
	}
	n := c.Size()
	if len(items) != n {
		err := fmt.Errorf("%w: scatter got %d items for %d ranks", ErrSizeMismatch, len(items), n)
		for i := 0; i < n; i++ {
			if i != root {
				if sendErr := c.collAbort(i, f, err); sendErr != nil {
					return zero, sendErr
				}
			}
		}
		return zero, err
	}
	for i, item := range items {
		if i != root {
			if err := c.collSend(i, f, cloneValue(item)); err != nil {
				return zero, err
			}
		}
	}
	return items[root], nil
}

// AllToAll sends items[j] from every member i to member j.
// Member j returns the items addressed to it, ordered by
// sender, so the result is the transpose of the inputs.
//
// Every member must pass exactly one item per member.
// If any member does not, every member fails with
// ErrSizeMismatch.
func AllToAll[T any](c *Comm, items []T) ([]T, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	n := c.Size()
	var sizeErr, peerErr error
	if len(items) != n {
		sizeErr = fmt.Errorf("%w: all-to-all got %d items for %d ranks", ErrSizeMismatch,
			len(items), n)
	}
	res := make([]T, n)
	if sizeErr == nil {
		res[c.rank] = items[c.rank]
	}
	for step := 1; step < n; step++ {
		dest := (c.rank + step) % n
		source := (c.rank - step + n) % n
		out := &frame{op: opAllToAll, root: -1}
		if sizeErr != nil {
			out.abort = sizeErr
		} else {
			out.value = items[dest]
		}
		got, err := c.collSendRecv(dest, out, source, out)
		if err != nil {
			return nil, err
		}
		if got.abort != nil {
			if peerErr == nil {
				peerErr = fmt.Errorf("all-to-all aborted by rank %d: %w", source, got.abort)
			}
			continue
		}
		if sizeErr == nil && peerErr == nil {
			res[source], err = frameValue[T](got, source)
			if err != nil {
				return nil, err
			}
		}
	}
	if sizeErr != nil {
		return nil, sizeErr
	}
	if peerErr != nil {
		return nil, peerErr
	}
	return res, nil
}

func recvValue[T any](c *Comm, source int, want *frame) (T, error) {
	f, err := c.collRecv(source, want)
	if err != nil {
		var zero T
		return zero, err
	}
	return frameValue[T](f, source)
}

// cloneValue copies slices of basic types, so that two
// ranks never share a buffer.
func cloneValue(value interface{}) interface{} {
	switch value := value.(type) {
	case []float64:
		return slices.Clone(value)
	case []float32:
		return slices.Clone(value)
	case []int:
		return slices.Clone(value)
	case []int32:
		return slices.Clone(value)
	case []int64:
		return slices.Clone(value)
	case []uint64:
		return slices.Clone(value)
	case []byte:
		return slices.Clone(value)
	case []string:
		return slices.Clone(value)
	case []bool:
		return slices.Clone(value)
	}
	return value
}

package comm

// Reduce combines the values of every member with op and
// returns the result at the root.
//
// Values are combined in rank order, as in
// op(op(v0, v1), v2) for three ranks, whichever algorithm
// the communicator uses.
// Members other than the root return the zero value.
func Reduce[T any](c *Comm, value T, op Op[T], root int) (T, error) {
	var zero T
	if err := c.checkRank(root); err != nil {
		return zero, err
	}
	f := &frame{op: opReduce, root: root, detail: "op=" + op.Name()}
	var res T
	var err error
	switch c.fab.algorithms.Reduce {
	case Linear:
		return reduceLinear(c, value, op, f)
	case Ring:
		res, err = reduceRing(c, value, op, f)
		if err != nil {
			return zero, err
		}
		return handoff(c, res, c.Size()-1, f)
	default:
		res, err = reduceTree(c, value, op, f)
		if err != nil {
			return zero, err
		}
		return handoff(c, res, 0, f)
	}
}

// AllReduce is like Reduce, but every member receives the
// result.
func AllReduce[T any](c *Comm, value T, op Op[T]) (T, error) {
	res, err := Reduce(c, value, op, 0)
	if err != nil {
		var zero T
		return zero, err
	}
	return Bcast(c, res, 0)
}

func reduceLinear[T any](c *Comm, value T, op Op[T], f *frame) (T, error) {
	var zero T
	if c.rank != f.root {
		return zero, c.collSend(f.root, f, cloneValue(value))
	}
	var acc T
	for i := 0; i < c.Size(); i++ {
		v := value
		if i != f.root {
			var err error
			v, err = recvValue[T](c, i, f)
			if err != nil {
				return zero, err
			}
		}
		if i == 0 {
			acc = v
		} else {
			acc = op.Apply(acc, v)
		}
	}
	return acc, nil
}

// reduceTree combines values up a binomial tree.
//
// At every level, a rank's partial result covers a
// contiguous block of ranks starting at itself, and it is
// merged with the block just after it, so rank 0 ends up
// with the full result in rank order.
func reduceTree[T any](c *Comm, value T, op Op[T], f *frame) (T, error) {
	var zero T
	n := c.Size()
	acc := value
	for mask := 1; mask < n; mask <<= 1 {
		if c.rank&mask != 0 {
			return zero, c.collSend(c.rank-mask, f, cloneValue(acc))
		} else if c.rank+mask < n {
			other, err := recvValue[T](c, c.rank+mask, f)
			if err != nil {
				return zero, err
			}
			acc = op.Apply(acc, other)
		}
	}
	return acc, nil
}

// reduceRing accumulates values along 0, 1, ..., n-1, so
// the last rank holds the result.
func reduceRing[T any](c *Comm, value T, op Op[T], f *frame) (T, error) {
	var zero T
	n := c.Size()
	acc := value
	if c.rank > 0 {
		prev, err := recvValue[T](c, c.rank-1, f)
		if err != nil {
			return zero, err
		}
		acc = op.Apply(prev, value)
	}
	if c.rank < n-1 {
		return zero, c.collSend(c.rank+1, f, cloneValue(acc))
	}
	return acc, nil
}

// handoff moves a result from the rank that computed it to
// the root.
func handoff[T any](c *Comm, res T, holder int, f *frame) (T, error) {
	var zero T
	if holder == f.root {
		if c.rank == f.root {
			return res, nil
		}
		return zero, nil
	}
	if c.rank == holder {
		return zero, c.collSend(f.root, f, cloneValue(res))
	} else if c.rank == f.root {
		return recvValue[T](c, holder, f)
	}
	return zero, nil
}
